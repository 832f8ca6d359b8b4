package cli

import (
	"github.com/thediveo/enumflag/v2"
)

type consoleFormat enumflag.Flag

const (
	consoleText consoleFormat = iota
	consoleJSON
	consoleNDJSON
)

var consoleFormatIDs = map[consoleFormat][]string{
	consoleText:   {"text"},
	consoleJSON:   {"json"},
	consoleNDJSON: {"ndjson"},
}

type logFormatFlag enumflag.Flag

const (
	logText logFormatFlag = iota
	logJSON
)

var logFormatIDs = map[logFormatFlag][]string{
	logText: {"text"},
	logJSON: {"json"},
}

var (
	consoleFmt consoleFormat
	logFormat  logFormatFlag
)

func newConsoleFormatFlag(v *consoleFormat) *enumflag.EnumFlagValue[consoleFormat] {
	return enumflag.New(v, "format", consoleFormatIDs, enumflag.EnumCaseInsensitive)
}

func newLogFormatFlag(v *logFormatFlag) *enumflag.EnumFlagValue[logFormatFlag] {
	return enumflag.New(v, "format", logFormatIDs, enumflag.EnumCaseInsensitive)
}

// applyEnumFlags copies enum flag values into the string-typed config.
func applyEnumFlags() {
	cfg.Output.ConsoleFormat = consoleFormatIDs[consoleFmt][0]
	cfg.Runtime.LogFormat = logFormatIDs[logFormat][0]
}
