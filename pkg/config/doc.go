// Package config provides configuration management using Viper.
//
// Loads and validates configuration from YAML files and environment
// variables, per the engine's startup-validated configuration contract.
package config
