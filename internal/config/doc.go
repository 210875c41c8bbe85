// Package config resolves process settings from flags and environment
// through viper. The environment names match the ones the services were
// always deployed with (AUTH_SERVICE_URL, SECRET_KEY, ALLOWED_ORIGINS, ...).
package config
