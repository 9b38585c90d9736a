package config

import (
	"encoding/base64"
	"fmt"
)

type Config struct {
	ServerAddr           string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	SigningKey           []byte
	ProviderClientId     string
	ProviderClientSecret string
	RedirectURL          string
	AllowedOrigins       []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, redisAddr, base64Secret, clientId, clientSecret, redirectURL string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if redisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if clientId == "" || clientSecret == "" {
		return nil, fmt.Errorf("provider credentials cannot be empty")
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("redirect URL cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:           serverAddr,
		RedisAddr:            redisAddr,
		SigningKey:           signingKey,
		ProviderClientId:     clientId,
		ProviderClientSecret: clientSecret,
		RedirectURL:          redirectURL,
		AllowedOrigins:       allowedOrigins,
	}, nil
}
