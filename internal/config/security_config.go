package config

type SecurityConfig interface {
	GetSigningSecret() []byte
	GetTokenIssuer() string
	GetTokenAudience() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSigningSecret() []byte {
	return []byte(GetEnv("SIGNING_SECRET", "dev-only-signing-secret"))
}

func (Security) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", "eventrian")
}

func (Security) GetTokenAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "eventrian-api")
}
