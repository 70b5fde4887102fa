// Package container checks the gateway's Dockerfile against its image
// contract: cache-friendly dependency layer, non-root runtime, fixed port and
// a start command that resolves to the built binary.
package container

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Instruction is one logical Dockerfile instruction with continuations joined.
type Instruction struct {
	Line  int      `json:"line"`
	Cmd   string   `json:"cmd"`
	Flags []string `json:"flags,omitempty"`
	Args  string   `json:"args"`
	Stage int      `json:"stage"`
}

// Stage is a build stage opened by FROM.
type Stage struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	Base  string `json:"base"`
	Line  int    `json:"line"`
}

// Dockerfile is the parsed form of a Dockerfile.
type Dockerfile struct {
	Instructions []Instruction `json:"instructions"`
	Stages       []Stage       `json:"stages"`
	LineCount    int           `json:"line_count"`
}

// Parse splits content into instructions. Comments and blank lines are
// skipped, trailing backslashes join lines, and leading --flags are split
// off the arguments.
func Parse(content string) *Dockerfile {
	lines := strings.Split(content, "\n")
	df := &Dockerfile{LineCount: len(lines)}

	var current strings.Builder
	start := 0
	stage := -1

	flush := func(text string, lineNum int) {
		parts := strings.Fields(text)
		if len(parts) == 0 {
			return
		}
		inst := Instruction{Line: lineNum, Cmd: strings.ToUpper(parts[0])}
		rest := parts[1:]
		for len(rest) > 0 && strings.HasPrefix(rest[0], "--") {
			inst.Flags = append(inst.Flags, rest[0])
			rest = rest[1:]
		}
		inst.Args = strings.Join(rest, " ")

		if inst.Cmd == "FROM" {
			stage++
			st := Stage{Index: stage, Line: lineNum}
			if len(rest) > 0 {
				st.Base = rest[0]
			}
			if len(rest) >= 3 && strings.EqualFold(rest[1], "AS") {
				st.Name = rest[2]
			}
			df.Stages = append(df.Stages, st)
		}
		inst.Stage = stage
		df.Instructions = append(df.Instructions, inst)
	}

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if current.Len() == 0 {
			start = lineNum
		} else {
			current.WriteString(" ")
		}

		if strings.HasSuffix(trimmed, "\\") {
			current.WriteString(strings.TrimSpace(strings.TrimSuffix(trimmed, "\\")))
			continue
		}
		current.WriteString(trimmed)
		flush(current.String(), start)
		current.Reset()
	}

	if current.Len() > 0 {
		flush(current.String(), start)
	}
	return df
}

// Flag returns the value of --name=value, if present.
func (i Instruction) Flag(name string) (string, bool) {
	prefix := "--" + name + "="
	for _, f := range i.Flags {
		if strings.HasPrefix(f, prefix) {
			return strings.TrimPrefix(f, prefix), true
		}
	}
	return "", false
}

// Words splits the arguments of CMD, ENTRYPOINT or RUN. Exec form (a JSON
// array) is decoded; shell form is split on whitespace.
func (i Instruction) Words() []string {
	args := strings.TrimSpace(i.Args)
	if strings.HasPrefix(args, "[") {
		var words []string
		if err := json.Unmarshal([]byte(args), &words); err == nil {
			return words
		}
	}
	return strings.Fields(args)
}

// CopySources returns the source operands of a COPY or ADD.
func (i Instruction) CopySources() []string {
	words := i.Words()
	if len(words) < 2 {
		return nil
	}
	return words[:len(words)-1]
}

// CopyDest returns the destination operand of a COPY or ADD.
func (i Instruction) CopyDest() string {
	words := i.Words()
	if len(words) < 2 {
		return ""
	}
	return words[len(words)-1]
}

// StageInstructions returns the instructions of stage idx in order.
func (d *Dockerfile) StageInstructions(idx int) []Instruction {
	var out []Instruction
	for _, inst := range d.Instructions {
		if inst.Stage == idx {
			out = append(out, inst)
		}
	}
	return out
}

// FinalStage is the index of the last stage, or -1 without FROM.
func (d *Dockerfile) FinalStage() int {
	return len(d.Stages) - 1
}

// StageByRef resolves a --from reference by name or index.
func (d *Dockerfile) StageByRef(ref string) (Stage, bool) {
	for _, st := range d.Stages {
		if strings.EqualFold(st.Name, ref) {
			return st, true
		}
	}
	for _, st := range d.Stages {
		if ref == strconv.Itoa(st.Index) {
			return st, true
		}
	}
	return Stage{}, false
}
