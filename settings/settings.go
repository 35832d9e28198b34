// Package settings parses the adapter's connection string: a
// ';'-separated list of case-insensitive key=value pairs. No
// third-party connection-string or INI library fits this GPA-style
// format, so parsing is hand-rolled against the standard library — the
// format is a handful of scalar fields, not a document structure that
// would justify pulling in a general parser.
package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings is the parsed connection string.
type Settings struct {
	IsConcentrator                bool
	AccessID                      uint16
	SharedMapping                 string
	TimeZone                      *time.Location
	TimeAdjustmentTicks           int64
	DataLossInterval              time.Duration
	DelayedConnectionInterval     time.Duration
	AllowUseOfCachedConfiguration bool
	DefinedFrameRate              int
	AutoRepeatFile                bool
	UseHighResolutionInputTimer   bool
	SimulateTimestamp             bool
	simulateTimestampSet          bool
	AllowedParsingExceptions      int
	ParsingExceptionWindow        time.Duration
	AutoStartDataParsingSequence  bool
	SkipDisableRealTimeData       bool
	ExecuteParseOnSeparateThread  bool
	ConfigurationFile             string
}

// defaults returns a Settings populated with its default values.
func defaults() Settings {
	return Settings{
		AccessID:                      1,
		TimeZone:                      time.UTC,
		DataLossInterval:              5 * time.Second,
		DelayedConnectionInterval:     1500 * time.Millisecond,
		AllowUseOfCachedConfiguration: true,
		DefinedFrameRate:              30,
		AutoRepeatFile:                true,
		AllowedParsingExceptions:      5,
		ParsingExceptionWindow:        10 * time.Second,
		AutoStartDataParsingSequence:  true,
	}
}

// Parse decodes a connection string of the form "key=value;key=value".
// Unknown keys are ignored (forward compatibility with keys this adapter
// does not recognize); a malformed value for a recognized key is an
// error, since it indicates a typo the operator should fix, not a value
// to silently default.
func Parse(connectionString string) (Settings, error) {
	s := defaults()

	for _, pair := range strings.Split(connectionString, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return Settings{}, fmt.Errorf("settings: malformed entry %q, expected key=value", pair)
		}
		key := strings.ToLower(strings.TrimSpace(k))
		value := strings.TrimSpace(v)

		if err := s.apply(key, value); err != nil {
			return Settings{}, err
		}
	}

	if !s.simulateTimestampSet {
		s.SimulateTimestamp = s.ConfigurationFile != ""
	}

	return s, nil
}

func (s *Settings) apply(key, value string) error {
	switch key {
	case "isconcentrator":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.IsConcentrator = b

	case "accessid":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("settings: accessID: %w", err)
		}
		s.AccessID = uint16(n)

	case "sharedmapping":
		s.SharedMapping = value

	case "timezone":
		loc, err := time.LoadLocation(value)
		if err != nil {
			return fmt.Errorf("settings: timeZone %q: %w", value, err)
		}
		s.TimeZone = loc

	case "timeadjustmentticks":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("settings: timeAdjustmentTicks: %w", err)
		}
		s.TimeAdjustmentTicks = n

	case "datalossinterval":
		d, err := parseSeconds(key, value)
		if err != nil {
			return err
		}
		s.DataLossInterval = d

	case "delayedconnectioninterval":
		d, err := parseSeconds(key, value)
		if err != nil {
			return err
		}
		if d < time.Millisecond {
			d = time.Millisecond
		}
		s.DelayedConnectionInterval = d

	case "allowuseofcachedconfiguration":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.AllowUseOfCachedConfiguration = b

	case "definedframerate":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("settings: definedFrameRate: %w", err)
		}
		s.DefinedFrameRate = n

	case "autorepeatfile":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.AutoRepeatFile = b

	case "usehighresolutioninputtimer":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.UseHighResolutionInputTimer = b

	case "simulatetimestamp":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.SimulateTimestamp = b
		s.simulateTimestampSet = true

	case "allowedparsingexceptions":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("settings: allowedParsingExceptions: %w", err)
		}
		s.AllowedParsingExceptions = n

	case "parsingexceptionwindow":
		d, err := parseSeconds(key, value)
		if err != nil {
			return err
		}
		s.ParsingExceptionWindow = d

	case "autostartdataparsingsequence":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.AutoStartDataParsingSequence = b

	case "skipdisablerealtimedata":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.SkipDisableRealTimeData = b

	case "executeparseonseparatethread":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		s.ExecuteParseOnSeparateThread = b

	case "configurationfile":
		s.ConfigurationFile = value
	}

	return nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("settings: %s: %w", key, err)
	}
	return b, nil
}

func parseSeconds(key, value string) (time.Duration, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("settings: %s: %w", key, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}
