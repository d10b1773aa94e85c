package access

// RouteTable maps "METHOD /resource/template" keys to the permission code
// required to call that route. Resources are API Gateway templates with
// path parameters left as placeholders, so lookup is a plain map read with
// no path parsing.
type RouteTable map[string]string

// Required returns the permission code for a method and resource template.
func (t RouteTable) Required(method, resource string) (string, bool) {
	code, ok := t[method+" "+resource]
	return code, ok
}

// DefaultRouteTable returns the protected route map for the back-office API.
// Every protected route must have an entry here; the guard denies anything
// it cannot find.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		// Branch management
		"GET /branches":         "branches.view",
		"POST /branches":        "branches.create",
		"GET /branches/{id}":    "branches.view",
		"PUT /branches/{id}":    "branches.update",
		"DELETE /branches/{id}": "branches.delete",

		// Employee management
		"GET /employees":         "employees.view",
		"POST /employees":        "employees.create",
		"GET /employees/{id}":    "employees.view",
		"PUT /employees/{id}":    "employees.update",
		"DELETE /employees/{id}": "employees.delete",

		// User administration
		"GET /users":                             "users.view",
		"POST /users":                            "users.create",
		"GET /users/{id}":                        "users.view",
		"PUT /users/{id}":                        "users.update",
		"DELETE /users/{id}":                     "users.delete",
		"GET /users/{id}/permissions":            "users.view",
		"GET /users/{id}/permissions/overrides":  "users.manage_permissions",
		"PUT /users/{id}/permissions/overrides":  "users.manage_permissions",
		"GET /users/{id}/branches":               "users.view",
		"POST /users/{id}/branches":              "users.manage_branches",
		"PUT /users/{id}/branches/primary":       "users.manage_branches",
		"DELETE /users/{id}/branches/{branchId}": "users.manage_branches",

		// Role management
		"GET /roles":                  "roles.view",
		"POST /roles":                 "roles.create",
		"GET /roles/{id}":             "roles.view",
		"PUT /roles/{id}":             "roles.update",
		"GET /roles/{id}/permissions": "roles.view",
		"PUT /roles/{id}/permissions": "roles.manage_permissions",

		// Permission catalog
		"GET /permissions":         "permissions.view",
		"POST /permissions":        "permissions.create",
		"PUT /permissions/{id}":    "permissions.update",
		"DELETE /permissions/{id}": "permissions.delete",

		// Company management
		"GET /companies":         "companies.view",
		"POST /companies":        "companies.create",
		"PUT /companies/{id}":    "companies.update",
		"DELETE /companies/{id}": "companies.delete",

		// Expense categories
		"GET /categories":         "categories.view",
		"POST /categories":        "categories.create",
		"PUT /categories/{id}":    "categories.update",
		"DELETE /categories/{id}": "categories.delete",

		// Journal entries
		"GET /journals":            "journals.view",
		"POST /journals":           "journals.create",
		"GET /journals/{id}":       "journals.view",
		"PUT /journals/{id}":       "journals.update",
		"POST /journals/{id}/post": "journals.post",
		"DELETE /journals/{id}":    "journals.delete",

		// Bank reconciliation
		"GET /reconciliation":               "reconciliation.view",
		"POST /reconciliation":              "reconciliation.create",
		"PUT /reconciliation/{id}":          "reconciliation.update",
		"POST /reconciliation/{id}/approve": "reconciliation.approve",
	}
}
