// Package config loads and validates the service configuration.
//
// Configuration comes from three layers, later layers overriding earlier:
//
//  1. Hardcoded defaults (port 8000, garmin.com, ~/.garminconnect)
//  2. A YAML file (configs/config.yaml by default)
//  3. Environment variables (GARMINAPI_* plus GARMINTOKENS)
//
// GARMINTOKENS deserves a note: it is the environment contract shared with
// the original Python wrapper and with the container image, which sets it to
// /data/.garminconnect. It always overrides tokens.path from the file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Server.Port) // 8000 unless overridden
package config
