package authz

import (
	"moralduel-controlplane/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("authz", fx.Provide(ProvideAuthorizer))

// Roles carried in the actor context.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

// Objects and actions checked by the services.
const (
	ObjectCase   = "case"
	ObjectJob    = "job"
	ObjectReward = "reward"

	ActionActivate = "activate"
	ActionModerate = "moderate"
	ActionTrigger  = "trigger"
	ActionVerify   = "verify"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

const defaultPolicy = `p, moderator, case, activate
p, moderator, case, moderate
p, system, case, *
p, system, job, *
p, admin, job, trigger
p, admin, reward, verify
g, admin, moderator
`

type Authorizer interface {
	Allowed(role, object, action string) bool
}

type enforcer struct {
	e *casbin.Enforcer
}

func ProvideAuthorizer(cfg *config.Config) (Authorizer, error) {
	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		e, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
		if err != nil {
			return nil, err
		}
		zap.L().Info("access control loaded from files",
			zap.String("model", cfg.AccessControl.Model),
			zap.String("policy", cfg.AccessControl.Policy),
		)
		return &enforcer{e: e}, nil
	}

	return NewDefault()
}

// NewDefault builds an authorizer from the built-in role policy.
func NewDefault() (Authorizer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(defaultPolicy))
	if err != nil {
		return nil, err
	}

	return &enforcer{e: e}, nil
}

func (a *enforcer) Allowed(role, object, action string) bool {
	ok, err := a.e.Enforce(role, object, action)
	if err != nil {
		zap.L().Error("failed to enforce policy",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
			zap.Error(err),
		)
		return false
	}
	return ok
}
