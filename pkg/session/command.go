package session

import (
	"strconv"
	"strings"
)

// MaxCommandLen is the longest accepted command line, in bytes. Longer
// lines are rejected with the catalogue parse error.
const MaxCommandLen = 2000

// verb selects the command a line carries.
type verb uint8

const (
	verbGet verb = iota
	verbSet
	verbCat
	verbList
	verbLoad
	verbPrompt
)

// name returns the verb's command word.
func (v verb) name() string {
	switch v {
	case verbGet:
		return "pcget"
	case verbSet:
		return "pcset"
	case verbCat:
		return "pccat"
	case verbList:
		return "pclist"
	case verbLoad:
		return "pcload"
	case verbPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// command is one parsed client line.
type command struct {
	verb     verb
	slotRef  string // slot number or driver name, "" to search by resource
	resource string
	value    string // set value or get transaction arguments
	driver   string // load driver name
	core     int    // load target core, -1 selects the lowest free core
	enable   bool   // prompt on or off
}

// nextField splits off the first whitespace-delimited word. The
// remainder keeps its internal spacing so free-text values survive
// parsing.
func nextField(s string) (field, rest string) {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// parseLine parses one client line, which must be non-empty. ok is
// false when the line does not form a command; the caller answers with
// the catalogue parse error.
func parseLine(line string) (cmd command, ok bool) {
	word, rest := nextField(line)
	switch word {
	case "pcget":
		return parseGet(rest)
	case "pcset":
		return parseSet(rest)
	case "pccat":
		return parseCat(rest)
	case "pclist":
		return parseList(rest)
	case "pcload":
		return parseLoad(rest)
	case "prompt":
		return parsePrompt(rest)
	}
	return command{}, false
}

func parseGet(rest string) (command, bool) {
	first, rest := nextField(rest)
	second, rest := nextField(rest)
	if first == "" {
		return command{}, false
	}
	if second == "" {
		// Bare resource form: the board searches every slot.
		return command{verb: verbGet, resource: first}, true
	}
	return command{
		verb: verbGet, slotRef: first, resource: second,
		value: strings.TrimLeft(rest, " \t"),
	}, true
}

func parseSet(rest string) (command, bool) {
	first, rest := nextField(rest)
	second, rest := nextField(rest)
	if first == "" || second == "" {
		return command{}, false
	}
	value := strings.TrimLeft(rest, " \t")
	if value == "" {
		// Two-word form: a bare resource and a one-word value.
		return command{verb: verbSet, resource: first, value: second}, true
	}
	return command{verb: verbSet, slotRef: first, resource: second, value: value}, true
}

func parseCat(rest string) (command, bool) {
	first, rest := nextField(rest)
	second, rest := nextField(rest)
	if first == "" || strings.TrimLeft(rest, " \t") != "" {
		return command{}, false
	}
	if second == "" {
		return command{verb: verbCat, resource: first}, true
	}
	return command{verb: verbCat, slotRef: first, resource: second}, true
}

func parseList(rest string) (command, bool) {
	first, rest := nextField(rest)
	if strings.TrimLeft(rest, " \t") != "" {
		return command{}, false
	}
	return command{verb: verbList, slotRef: first}, true
}

func parseLoad(rest string) (command, bool) {
	driver, rest := nextField(rest)
	coreWord, rest := nextField(rest)
	if driver == "" || strings.TrimLeft(rest, " \t") != "" {
		return command{}, false
	}
	cmd := command{verb: verbLoad, driver: driver, core: -1}
	if coreWord != "" {
		core, err := strconv.Atoi(coreWord)
		if err != nil {
			return command{}, false
		}
		cmd.core = core
	}
	return cmd, true
}

func parsePrompt(rest string) (command, bool) {
	word, rest := nextField(rest)
	if strings.TrimLeft(rest, " \t") != "" {
		return command{}, false
	}
	switch word {
	case "on":
		return command{verb: verbPrompt, enable: true}, true
	case "off":
		return command{verb: verbPrompt, enable: false}, true
	}
	return command{}, false
}
