package config

// DefaultSheetDelimiter separates sheets written to one output.
const DefaultSheetDelimiter = "--------"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.CSV.Delimiter == "" {
		cfg.CSV.Delimiter = ","
	}
	if cfg.CSV.Quoting == "" {
		cfg.CSV.Quoting = "minimal"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".xls", ".xlsx"}
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 400
	}
	// LineTerminator stays empty; the command substitutes the OS line separator.
}
