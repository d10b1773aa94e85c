package access

import (
	"context"
	"errors"
	"fmt"

	"backoffice/lib/constants"

	"github.com/sirupsen/logrus"
)

// ErrAccessDenied is returned by all guard checks that do not pass. Callers
// map it to an HTTP 403 or an API Gateway Deny policy.
var ErrAccessDenied = errors.New("access denied")

// Subject identifies the caller being authorized, as carried in token claims.
type Subject struct {
	UserID         int64
	RoleCode       string
	HierarchyLevel int
}

// Guard answers allow/deny questions against resolved permission sets and a
// static route table. Every failure path denies: a missing route entry, a
// resolver error, and a timed-out resolution all come back ErrAccessDenied.
type Guard struct {
	Resolver *Resolver
	Routes   RouteTable
	Logger   *logrus.Logger
}

// AuthorizePermission checks that the subject's effective set contains the
// given permission code. The wildcard sentinel satisfies every code.
func (g *Guard) AuthorizePermission(ctx context.Context, subject Subject, code string) error {
	codes, err := g.Resolver.Resolve(ctx, subject.UserID)
	if err != nil {
		g.Logger.WithFields(logrus.Fields{
			"user_id":    subject.UserID,
			"permission": code,
			"error":      err.Error(),
		}).Error("Permission resolution failed, denying access")
		return ErrAccessDenied
	}

	for _, c := range codes {
		if c == constants.WildcardPermission || c == code {
			return nil
		}
	}

	g.Logger.WithFields(logrus.Fields{
		"user_id":    subject.UserID,
		"permission": code,
	}).Warn("Permission denied")
	return fmt.Errorf("missing permission %s: %w", code, ErrAccessDenied)
}

// AuthorizeLevel checks that the subject's hierarchy level is at least the
// given minimum. Levels increase with seniority.
func (g *Guard) AuthorizeLevel(subject Subject, minLevel int) error {
	if subject.HierarchyLevel >= minLevel {
		return nil
	}
	g.Logger.WithFields(logrus.Fields{
		"user_id":   subject.UserID,
		"level":     subject.HierarchyLevel,
		"min_level": minLevel,
	}).Warn("Hierarchy level below required minimum")
	return fmt.Errorf("hierarchy level %d below %d: %w", subject.HierarchyLevel, minLevel, ErrAccessDenied)
}

// AuthorizeRoute looks up the permission required for a method and resource
// template in the route table and checks it. Routes absent from the table
// are denied outright.
func (g *Guard) AuthorizeRoute(ctx context.Context, subject Subject, method, resource string) error {
	code, ok := g.Routes.Required(method, resource)
	if !ok {
		g.Logger.WithFields(logrus.Fields{
			"user_id":  subject.UserID,
			"method":   method,
			"resource": resource,
		}).Warn("No route table entry, denying access")
		return fmt.Errorf("unmapped route %s %s: %w", method, resource, ErrAccessDenied)
	}
	return g.AuthorizePermission(ctx, subject, code)
}
