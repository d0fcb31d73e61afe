package authorization

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/virtuepath/internal/role"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

func subject(r role.Role) string {
	return "role:" + r.String()
}

// staticPolicies is the resource x action x role table.
func staticPolicies() [][]string {
	individual := func(r role.Role) [][]string {
		return [][]string{
			{subject(r), ResourceJournal, ActionRead},
			{subject(r), ResourceJournal, ActionWrite},
			{subject(r), ResourceSponsorRelationship, ActionRead},
			{subject(r), ResourceSponsorRelationship, ActionWrite},
			{subject(r), ResourcePayment, ActionRead},
			{subject(r), ResourcePayment, ActionWrite},
			{subject(r), ResourceProfile, ActionRead},
			{subject(r), ResourceProfile, ActionWrite},
		}
	}
	staff := func(r role.Role) [][]string {
		return [][]string{
			{subject(r), ResourceOrganization, ActionRead},
			{subject(r), ResourceOrganizationMembers, ActionRead},
			{subject(r), ResourceAssignment, ActionRead},
			{subject(r), ResourceProfile, ActionRead},
			{subject(r), ResourceProfile, ActionWrite},
		}
	}

	policies := [][]string{
		{subject(role.SystemAdmin), "*", "*"},

		{subject(role.OrgAdmin), ResourceOrganization, ActionRead},
		{subject(role.OrgAdmin), ResourceOrganization, ActionManage},
		{subject(role.OrgAdmin), ResourceOrganizationMembers, ActionRead},
		{subject(role.OrgAdmin), ResourceOrganizationMembers, ActionManage},
		{subject(role.OrgAdmin), ResourceAssignment, ActionRead},
		{subject(role.OrgAdmin), ResourceAssignment, ActionWrite},
		{subject(role.OrgAdmin), ResourcePractitionerData, ActionRead},
		{subject(role.OrgAdmin), ResourceAudit, ActionRead},
		{subject(role.OrgAdmin), ResourceProfile, ActionRead},
		{subject(role.OrgAdmin), ResourceProfile, ActionWrite},
		{subject(role.OrgAdmin), ResourcePayment, ActionRead},
		{subject(role.OrgAdmin), ResourcePayment, ActionWrite},
	}
	policies = append(policies, staff(role.OrgCoach)...)
	policies = append(policies, staff(role.OrgTherapist)...)
	policies = append(policies, [][]string{
		{subject(role.OrgPractitioner), ResourceOrganization, ActionRead},
	}...)
	policies = append(policies, individual(role.OrgPractitioner)...)
	policies = append(policies, individual(role.IndividualPractitioner)...)
	policies = append(policies, [][]string{
		{subject(role.IndividualSponsor), ResourceSponsorRelationship, ActionRead},
		{subject(role.IndividualSponsor), ResourceSponsorRelationship, ActionWrite},
		{subject(role.IndividualSponsor), ResourcePayment, ActionRead},
		{subject(role.IndividualSponsor), ResourcePayment, ActionWrite},
		{subject(role.IndividualSponsor), ResourceProfile, ActionRead},
		{subject(role.IndividualSponsor), ResourceProfile, ActionWrite},
	}...)
	return policies
}

// NewEnforcer loads the casbin_rule table and reconciles it with the static
// table, removing rows that are no longer part of it.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer holds the static table without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	desired := staticPolicies()
	want := make(map[[3]string]struct{}, len(desired))
	for _, p := range desired {
		want[[3]string{p[0], p[1], p[2]}] = struct{}{}
	}

	existing, err := enforcer.GetPolicy()
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) == 3 {
			if _, ok := want[[3]string{rule[0], rule[1], rule[2]}]; ok {
				continue
			}
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := enforcer.RemovePolicy(params...); err != nil {
			return err
		}
	}

	for _, policy := range desired {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
