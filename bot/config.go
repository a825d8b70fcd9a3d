package bot

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config is a bot's per-account configuration, loaded from <botName>.xml
// (spec.md §6). Unrecognized keys are logged and ignored rather than
// rejected, so a config written for a newer version of this system still
// loads.
type Config struct {
	Enabled                   bool
	SteamLogin                string
	SteamPassword             string
	SteamNickname             string
	SteamApiKey               string
	SteamParentalPIN          string
	SteamMasterID             uint64
	SteamMasterClanID         uint64
	CardDropsRestricted       bool
	ShutdownOnFarmingFinished bool
	Blacklist                 []uint32
	Statistics                bool

	// Supplemented keys (SPEC_FULL.md §6), not present in the distilled spec.
	SteamSharedSecret      string
	ConnectThrottleSeconds int
	LoginCooldownMinutes   int
}

func defaultConfig() Config {
	return Config{
		SteamLogin:           "null",
		SteamPassword:        "null",
		SteamNickname:        "null",
		SteamApiKey:          "null",
		SteamParentalPIN:     "0",
		Blacklist:            []uint32{303700, 335590, 368020},
		Statistics:           true,
		SteamSharedSecret:    "null",
		LoginCooldownMinutes: 25,
	}
}

type xmlEntry struct {
	XMLName xml.Name
	Value   string `xml:"value,attr"`
}

type xmlConfig struct {
	XMLName xml.Name   `xml:"Config"`
	Entries []xmlEntry `xml:",any"`
}

// LoadConfig reads a <botName>.xml file, applying the documented defaults
// for any absent key and logging any key it doesn't recognize.
func LoadConfig(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw xmlConfig
	if err := xml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := defaultConfig()
	for _, e := range raw.Entries {
		switch e.XMLName.Local {
		case "Enabled":
			cfg.Enabled = parseBool(e.Value)
		case "SteamLogin":
			cfg.SteamLogin = e.Value
		case "SteamPassword":
			cfg.SteamPassword = e.Value
		case "SteamNickname":
			cfg.SteamNickname = e.Value
		case "SteamApiKey":
			cfg.SteamApiKey = e.Value
		case "SteamParentalPIN":
			cfg.SteamParentalPIN = e.Value
		case "SteamMasterID":
			cfg.SteamMasterID = parseUint64(e.Value)
		case "SteamMasterClanID":
			cfg.SteamMasterClanID = parseUint64(e.Value)
		case "CardDropsRestricted":
			cfg.CardDropsRestricted = parseBool(e.Value)
		case "ShutdownOnFarmingFinished":
			cfg.ShutdownOnFarmingFinished = parseBool(e.Value)
		case "Blacklist":
			cfg.Blacklist = parseCSVUint32(e.Value)
		case "Statistics":
			cfg.Statistics = parseBool(e.Value)
		case "SteamSharedSecret":
			cfg.SteamSharedSecret = e.Value
		case "ConnectThrottleSeconds":
			cfg.ConnectThrottleSeconds = parseInt(e.Value)
		case "LoginCooldownMinutes":
			cfg.LoginCooldownMinutes = parseInt(e.Value)
		default:
			logger.Warn("unrecognized config key", "path", path, "key", e.XMLName.Local)
		}
	}

	return cfg, nil
}

func parseBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}

func parseUint64(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseCSVUint32(s string) []uint32 {
	fields := strings.Split(s, ",")
	out := make([]uint32, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(n))
	}
	return out
}
