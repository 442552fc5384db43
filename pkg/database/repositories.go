package database

// Repositories bundles every repository over a single Client, the way a
// caller typically wants to wire them together.
type Repositories struct {
	Assets     *AssetRepository
	ChangeLogs *ChangeLogRepository
	Trees      *TreeRepository
	Metadata   *MetadataRepository
	Accounts   *AccountRepository
}

// NewRepositories builds every repository over client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Assets:     NewAssetRepository(client),
		ChangeLogs: NewChangeLogRepository(client),
		Trees:      NewTreeRepository(client),
		Metadata:   NewMetadataRepository(client),
		Accounts:   NewAccountRepository(client),
	}
}
