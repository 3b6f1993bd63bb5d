package option

type StreamOptions struct {
	Secured       bool   `json:"secured,omitempty"`
	ReadRateLimit uint64 `json:"read_rate_limit,omitempty"`
	ReadRateAlarm uint64 `json:"read_rate_alarm,omitempty"`
}

type InboundTLSOptions struct {
	Enabled         bool   `json:"enabled,omitempty"`
	ServerName      string `json:"server_name,omitempty"`
	MinVersion      string `json:"min_version,omitempty"`
	MaxVersion      string `json:"max_version,omitempty"`
	Certificate     string `json:"certificate,omitempty"`
	CertificatePath string `json:"certificate_path,omitempty"`
	Key             string `json:"key,omitempty"`
	KeyPath         string `json:"key_path,omitempty"`
}
