package container

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Recipe names the dependency-layer ordering a Dockerfile follows.
const (
	RecipeCacheOptimized = "cache-optimized"
	RecipeNaive          = "naive"
	RecipeUnknown        = "unknown"
)

var (
	portPattern = regexp.MustCompile(`^\d+(/tcp|/udp)?$`)

	knownInstructions = map[string]bool{
		"FROM": true, "RUN": true, "CMD": true, "LABEL": true, "EXPOSE": true,
		"ENV": true, "ADD": true, "COPY": true, "ENTRYPOINT": true, "VOLUME": true,
		"USER": true, "WORKDIR": true, "ARG": true, "ONBUILD": true,
		"STOPSIGNAL": true, "HEALTHCHECK": true, "SHELL": true, "MAINTAINER": true,
	}
)

// Issue is one finding. Rule is either a generic category ("syntax",
// "best_practice", "security") or the contract rule that failed.
type Issue struct {
	Rule        string `json:"rule"`
	Line        int    `json:"line"`
	Message     string `json:"message"`
	Instruction string `json:"instruction,omitempty"`
	Severity    string `json:"severity"`
}

// Result is the outcome of validating one Dockerfile.
type Result struct {
	Valid       bool     `json:"valid"`
	Errors      []Issue  `json:"errors"`
	Warnings    []Issue  `json:"warnings"`
	Suggestions []string `json:"suggestions"`
	Stages      []Stage  `json:"stages"`
	Recipe      string   `json:"recipe"`
}

func (r *Result) addError(rule string, line int, inst, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{
		Rule:        rule,
		Line:        line,
		Message:     fmt.Sprintf(format, args...),
		Instruction: inst,
		Severity:    SeverityError,
	})
}

func (r *Result) addWarning(rule string, line int, inst, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{
		Rule:        rule,
		Line:        line,
		Message:     fmt.Sprintf(format, args...),
		Instruction: inst,
		Severity:    SeverityWarning,
	})
}

// HasRule reports whether any error was raised by rule.
func (r *Result) HasRule(rule string) bool {
	for _, e := range r.Errors {
		if e.Rule == rule {
			return true
		}
	}
	return false
}

// Validator checks Dockerfiles for syntax problems and against a Contract.
type Validator struct {
	contract Contract
	logger   zerolog.Logger
}

// NewValidator creates a validator for the given image contract.
func NewValidator(contract Contract, logger zerolog.Logger) *Validator {
	return &Validator{
		contract: contract,
		logger:   logger.With().Str("component", "dockerfile_validator").Logger(),
	}
}

// ValidateFile reads and validates the Dockerfile at path.
func (v *Validator) ValidateFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dockerfile %s: %w", path, err)
	}
	return v.Validate(string(data)), nil
}

// Validate runs the generic instruction checks and then the contract rules.
func (v *Validator) Validate(content string) *Result {
	result := &Result{
		Valid:       true,
		Errors:      make([]Issue, 0),
		Warnings:    make([]Issue, 0),
		Suggestions: make([]string, 0),
		Recipe:      RecipeUnknown,
	}

	if strings.TrimSpace(content) == "" {
		result.Valid = false
		result.addError("content", 0, "", "Dockerfile is empty")
		return result
	}

	df := Parse(content)
	result.Stages = df.Stages

	for _, inst := range df.Instructions {
		v.checkInstruction(inst, result)
	}
	v.checkStructure(df, result)
	if len(df.Stages) > 0 {
		v.contract.check(df, result)
	}

	result.Valid = len(result.Errors) == 0

	v.logger.Debug().
		Bool("valid", result.Valid).
		Str("recipe", result.Recipe).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Msg("Dockerfile validation completed")

	return result
}

func (v *Validator) checkInstruction(inst Instruction, result *Result) {
	args := inst.Words()
	switch inst.Cmd {
	case "FROM":
		if len(args) == 0 {
			result.addError("syntax", inst.Line, inst.Cmd, "FROM instruction requires an image name")
			return
		}
		image := args[0]
		if image != "scratch" && (strings.HasSuffix(image, ":latest") || !strings.Contains(image, ":")) {
			result.addWarning("best_practice", inst.Line, inst.Cmd, "Image %s uses 'latest' or no tag; pin a version", image)
		}
	case "COPY", "ADD":
		if len(args) < 2 {
			result.addError("syntax", inst.Line, inst.Cmd, "%s instruction requires source and destination", inst.Cmd)
			return
		}
		if inst.Cmd == "ADD" && !strings.Contains(inst.Args, "http") && !strings.Contains(args[0], ".tar") {
			result.addWarning("best_practice", inst.Line, inst.Cmd, "COPY is preferred over ADD for simple file copying")
		}
	case "EXPOSE":
		if len(args) == 0 {
			result.addError("syntax", inst.Line, inst.Cmd, "EXPOSE instruction requires a port number")
			return
		}
		for _, port := range args {
			if !portPattern.MatchString(port) {
				result.addError("syntax", inst.Line, inst.Cmd, "Invalid port format: %s", port)
			}
		}
	case "WORKDIR":
		if len(args) == 0 {
			result.addError("syntax", inst.Line, inst.Cmd, "WORKDIR instruction requires a path")
		} else if !strings.HasPrefix(args[0], "/") && !strings.HasPrefix(args[0], "$") {
			result.addWarning("best_practice", inst.Line, inst.Cmd, "WORKDIR %s is relative; use an absolute path", args[0])
		}
	case "USER":
		if len(args) == 0 {
			result.addError("syntax", inst.Line, inst.Cmd, "USER instruction requires a user")
		}
	case "RUN":
		if strings.Contains(inst.Args, "apt-get install") && !strings.Contains(inst.Args, "rm -rf /var/lib/apt/lists") {
			result.addWarning("best_practice", inst.Line, inst.Cmd, "Clean the apt cache in the same RUN to keep the layer small")
		}
		if strings.Contains(inst.Args, "apk add") && !strings.Contains(inst.Args, "--no-cache") {
			result.addWarning("best_practice", inst.Line, inst.Cmd, "Use 'apk add --no-cache' to avoid keeping the package index")
		}
	default:
		if !knownInstructions[inst.Cmd] {
			result.addError("syntax", inst.Line, inst.Cmd, "Unknown instruction: %s", inst.Cmd)
		}
	}
}

func (v *Validator) checkStructure(df *Dockerfile, result *Result) {
	if len(df.Stages) == 0 {
		result.addError("syntax", 0, "FROM", "Dockerfile must contain a FROM instruction")
		return
	}
	for _, inst := range df.Instructions {
		if inst.Cmd == "FROM" {
			break
		}
		if inst.Cmd != "ARG" {
			result.addError("syntax", inst.Line, inst.Cmd, "Only ARG may precede the first FROM, found %s", inst.Cmd)
		}
	}

	final := df.FinalStage()
	var cmds, entrypoints, healthchecks int
	for _, inst := range df.StageInstructions(final) {
		switch inst.Cmd {
		case "CMD":
			cmds++
		case "ENTRYPOINT":
			entrypoints++
		case "HEALTHCHECK":
			healthchecks++
		}
	}
	if cmds > 1 {
		result.addWarning("best_practice", 0, "CMD", "Multiple CMD instructions; only the last one takes effect")
	}
	if entrypoints > 1 {
		result.addWarning("best_practice", 0, "ENTRYPOINT", "Multiple ENTRYPOINT instructions; only the last one takes effect")
	}
	if healthchecks == 0 {
		result.Suggestions = append(result.Suggestions, "Add a HEALTHCHECK that probes the health endpoint")
	}
	if len(df.Stages) == 1 {
		result.Suggestions = append(result.Suggestions, "Use a multi-stage build so the runtime image does not carry the toolchain")
	}
}
