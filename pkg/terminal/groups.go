package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	dataCmds
	cacheCmds
	processCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Viewing program variables and memory", dataCmds},
	{"Managing caches and symbols", cacheCmds},
	{"Listing and switching between processes", processCmds},
	{"Other commands", otherCmds},
}
