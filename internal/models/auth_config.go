package models

// AuthProviderType selects how bearer identity tokens are verified on
// the key-issuance path.
type AuthProviderType string

const (
	AuthProviderClerk AuthProviderType = "clerk"
	AuthProviderJWT   AuthProviderType = "jwt"
)

type AuthConfig struct {
	Provider AuthProviderType `json:"provider" yaml:"provider"`
	Clerk    *ClerkAuthConfig `json:"clerk,omitempty" yaml:"clerk,omitempty"`
	JWT      *JWTAuthConfig   `json:"jwt,omitempty" yaml:"jwt,omitempty"`
}

type ClerkAuthConfig struct {
	SecretKey string `json:"secret_key" yaml:"secret_key"`
}

// JWTAuthConfig configures the static HS256 verifier used by self-hosted
// deployments that do not delegate identity to Clerk.
type JWTAuthConfig struct {
	Secret string `json:"secret" yaml:"secret"`
}
