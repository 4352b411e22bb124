package config

type AppConfig struct {
	Server  ServerConfig
	Log     LogConfig
	Catalog *Catalog
}

// LoadApp reads env config and the room catalog. Without CATALOG_PATH the
// built-in default catalog is used.
func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	catalog := DefaultCatalog()
	if serverCfg.CatalogPath != "" {
		catalog, err = LoadCatalog(serverCfg.CatalogPath)
		if err != nil {
			return AppConfig{}, err
		}
	}
	return AppConfig{
		Server:  serverCfg,
		Log:     logCfg,
		Catalog: catalog,
	}, nil
}
