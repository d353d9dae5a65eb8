// Package config loads the ChatWallet daemon configuration from a JSON file,
// fills defaults, and resolves every secret from the environment variable
// named by its *_env field. Secrets never live in the file itself.
package config
