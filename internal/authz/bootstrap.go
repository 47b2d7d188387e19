package authz

import "fmt"

// RoleSeed 预置角色
type RoleSeed struct {
	Role     string
	Policies []Policy
}

// 预置角色名
const (
	RoleAuditor    = "auditor"
	RoleCatalog    = "catalog"
	RoleFulfilment = "fulfilment"
)

// BuiltinRoleSeeds 书店后台预置角色
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: RoleAuditor,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
		},
		{
			Role: RoleCatalog,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
				{Object: "/admin/products", Action: "POST"},
				{Object: "/admin/products/:id", Action: "*"},
				{Object: "/admin/products/:id/stock", Action: "POST"},
				{Object: "/admin/promo-codes", Action: "POST"},
				{Object: "/admin/promo-codes/:id", Action: "*"},
			},
		},
		{
			Role: RoleFulfilment,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
				{Object: "/admin/orders/:id/status", Action: "PATCH"},
				{Object: "/admin/pending-emails/retry", Action: "POST"},
				{Object: "/admin/pending-emails/:id/retry", Action: "POST"},
			},
		},
	}
}

// BootstrapBuiltinRoles 写入预置角色策略，已存在的策略不会重复写入
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}
	for _, seed := range BuiltinRoleSeeds() {
		for _, policy := range seed.Policies {
			if err := s.GrantRolePolicy(seed.Role, policy.Object, policy.Action); err != nil {
				return fmt.Errorf("seed role %s failed: %w", seed.Role, err)
			}
		}
	}
	return nil
}
