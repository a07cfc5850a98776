package ledger

// Roles seeded by Init.
const (
	RoleImporterBank = "Importer Bank"
	RoleCustoms      = "Customs"
	RoleExporterBank = "Exporter Bank"
	RoleExporter     = "Exporter"
)

// User is a portal account stored on the ledger.
type User struct {
	UserName     string `json:"userName"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// PasswordHasher hashes and checks user passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

var seedUsers = []struct {
	name string
	role string
}{
	{"importerBank", RoleImporterBank},
	{"customs", RoleCustoms},
	{"exporterBank", RoleExporterBank},
	{"exporter", RoleExporter},
}
