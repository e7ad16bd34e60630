package memory

import (
	"context"
	"sync"

	"github.com/aimbuild/siteauth"
)

// CompanyDirectory holds known company ids and one company link per account.
type CompanyDirectory struct {
	mu        sync.RWMutex
	companies map[string]string
	links     map[string]siteauth.TenancyLink
}

var _ siteauth.CompanyDirectory = (*CompanyDirectory)(nil)

func NewCompanyDirectory() *CompanyDirectory {
	return &CompanyDirectory{
		companies: make(map[string]string),
		links:     make(map[string]siteauth.TenancyLink),
	}
}

// CreateCompany registers a company. Re-creating an id renames it.
func (d *CompanyDirectory) CreateCompany(_ context.Context, id, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.companies[id] = name
	return nil
}

func (d *CompanyDirectory) CompanyExists(_ context.Context, companyID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.companies[companyID]
	return ok, nil
}

// LinkAccount replaces any previous link of the account.
func (d *CompanyDirectory) LinkAccount(_ context.Context, link siteauth.TenancyLink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links[link.AccountID] = link
	return nil
}

func (d *CompanyDirectory) UnlinkAccount(_ context.Context, accountID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.links, accountID)
	return nil
}

func (d *CompanyDirectory) CompanyForAccount(_ context.Context, accountID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	link, ok := d.links[accountID]
	return link.CompanyID, ok, nil
}
