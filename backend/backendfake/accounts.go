package backendfake

// DemoPassword is the password of every DemoAccounts entry.
const DemoPassword = "Passw0rd!"

// DemoAccounts has one account per namespace plus two accounts sharing a
// phone number, so every login path can be tried against the fake.
var DemoAccounts = []Account{
	{Username: "alice", Password: DemoPassword, Role: "user", FullName: "Alice User", Email: "alice@example.com", Phone: "5550001", Pincode: "560001"},
	{Username: "acme", Password: DemoPassword, Role: "agency", Category: "agency", FullName: "Acme Agency", Email: "ops@acme.example.com", Phone: "5550100"},
	{Username: "acme-north", Password: DemoPassword, Role: "agency", Category: "agency_branch", FullName: "Acme North", Phone: "5550100"},
	{Username: "eve", Password: DemoPassword, Role: "employee", Category: "employee", FullName: "Eve Employee", Email: "eve@example.com"},
	{Username: "root", Password: DemoPassword, Role: "admin", IsStaff: true, IsSuperuser: true, FullName: "Site Admin", Email: "admin@example.com"},
}

// RegisterAll registers each account, stopping at the first failure.
func (f *FakeBackend) RegisterAll(accounts ...Account) error {
	for _, a := range accounts {
		if err := f.Register(a); err != nil {
			return err
		}
	}
	return nil
}
