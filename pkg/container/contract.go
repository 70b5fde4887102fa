package container

import (
	"path"
	"strconv"
	"strings"
)

// Contract rule names reported in Issue.Rule.
const (
	RuleDependencyCache = "dependency-cache"
	RuleManifests       = "manifests"
	RulePort            = "port"
	RuleNonRoot         = "non-root"
	RuleOwnership       = "ownership"
	RuleStartCommand    = "start-command"
	RuleWorkdir         = "workdir"
)

// Contract describes what the gateway image must look like.
type Contract struct {
	Host            string
	Port            int
	UID             int
	User            string
	Workdir         string
	Manifests       []string
	DownloadCommand string
	StartCommand    string
}

// DefaultContract is the contract of the ai-gateway image.
func DefaultContract() Contract {
	return Contract{
		Host:            "0.0.0.0",
		Port:            8000,
		UID:             1000,
		User:            "appuser",
		Workdir:         "/app",
		Manifests:       []string{"go.mod", "go.sum"},
		DownloadCommand: "go mod download",
		StartCommand:    "serve",
	}
}

func (c Contract) check(df *Dockerfile, result *Result) {
	c.checkDependencyLayer(df, result)

	final := df.FinalStage()
	insts := df.StageInstructions(final)
	command := startCommand(insts)

	c.checkPort(insts, command, result)
	c.checkUser(insts, result)
	c.checkOwnership(insts, result)
	c.checkStartCommand(df, insts, command, result)
	c.checkWorkdir(df.Stages[final], insts, result)
}

// checkDependencyLayer covers rules 1 and 2: only manifests are copied before
// the download step, and all of them are.
func (c Contract) checkDependencyLayer(df *Dockerfile, result *Result) {
	download := -1
	for i, inst := range df.Instructions {
		if inst.Cmd == "RUN" && strings.Contains(inst.Args, c.DownloadCommand) {
			download = i
			break
		}
	}
	if download < 0 {
		result.addError(RuleDependencyCache, 0, "RUN",
			"No '%s' step; dependencies are fetched in the same layer as the source build", c.DownloadCommand)
		return
	}

	step := df.Instructions[download]
	copied := make(map[string]bool, len(c.Manifests))
	naive := false
	for _, inst := range df.Instructions[:download] {
		if inst.Stage != step.Stage || (inst.Cmd != "COPY" && inst.Cmd != "ADD") {
			continue
		}
		if _, ok := inst.Flag("from"); ok {
			continue
		}
		for _, src := range inst.CopySources() {
			name, ok := c.manifest(src)
			if !ok {
				naive = true
				result.addError(RuleDependencyCache, inst.Line, inst.Cmd,
					"%s copies %s before '%s'; any source change re-downloads dependencies", inst.Cmd, src, c.DownloadCommand)
				continue
			}
			copied[name] = true
		}
	}

	for _, m := range c.Manifests {
		if !copied[m] {
			result.addError(RuleManifests, step.Line, "RUN", "%s is not copied before '%s'", m, c.DownloadCommand)
		}
	}

	if naive {
		result.Recipe = RecipeNaive
		return
	}
	result.Recipe = RecipeCacheOptimized

	sourceCopied := false
	for _, inst := range df.Instructions[download+1:] {
		if inst.Stage == step.Stage && inst.Cmd == "COPY" {
			sourceCopied = true
			break
		}
	}
	if !sourceCopied {
		result.addWarning(RuleDependencyCache, step.Line, "RUN", "Source is never copied into the build stage after the download step")
	}
}

// manifest matches a COPY source such as "go.sum*" or "./go.mod".
func (c Contract) manifest(src string) (string, bool) {
	base := path.Base(strings.TrimRight(src, "*"))
	for _, m := range c.Manifests {
		if base == m {
			return m, true
		}
	}
	return "", false
}

func (c Contract) checkPort(insts []Instruction, command []string, result *Result) {
	want := strconv.Itoa(c.Port)
	exposed := false
	for _, inst := range insts {
		if inst.Cmd != "EXPOSE" {
			continue
		}
		for _, p := range inst.Words() {
			if strings.TrimSuffix(p, "/tcp") == want {
				exposed = true
			}
		}
	}
	if !exposed {
		result.addError(RulePort, 0, "EXPOSE", "Port %d is not exposed", c.Port)
	}

	if host, ok := flagValue(command, "--host"); ok && host != c.Host {
		result.addError(RulePort, 0, "CMD", "Server binds %s; it must bind all interfaces (%s)", host, c.Host)
	}
	if port, ok := flagValue(command, "--port"); ok && port != want {
		result.addError(RulePort, 0, "CMD", "Server listens on port %s; the image exposes %d", port, c.Port)
	}
}

func (c Contract) checkUser(insts []Instruction, result *Result) {
	var user *Instruction
	for i := range insts {
		if insts[i].Cmd == "USER" {
			user = &insts[i]
		}
	}
	if user == nil {
		result.addError(RuleNonRoot, 0, "USER", "Runtime stage has no USER; the server would run as root")
		return
	}

	name := strings.SplitN(strings.TrimSpace(user.Args), ":", 2)[0]
	uid := strconv.Itoa(c.UID)
	switch name {
	case "root", "0":
		result.addError(RuleNonRoot, user.Line, "USER", "Server must not run as root")
	case uid:
	case c.User:
		if !c.userCreated(insts) {
			result.addError(RuleNonRoot, user.Line, "USER", "User %s is not created with uid %d", c.User, c.UID)
		}
	default:
		result.addError(RuleNonRoot, user.Line, "USER", "Runtime user must be %s or uid %d, found %s", c.User, c.UID, name)
	}
}

func (c Contract) userCreated(insts []Instruction) bool {
	uid := strconv.Itoa(c.UID)
	for _, inst := range insts {
		if inst.Cmd != "RUN" {
			continue
		}
		words := inst.Words()
		for i, w := range words {
			if w != "adduser" && w != "useradd" {
				continue
			}
			if value, ok := flagValue(words[i:], "-u"); ok && value == uid {
				return containsWord(words[i:], c.User)
			}
			if value, ok := flagValue(words[i:], "--uid"); ok && value == uid {
				return containsWord(words[i:], c.User)
			}
		}
	}
	return false
}

// checkOwnership accepts either a recursive chown of the workdir or --chown
// on every copy into it.
func (c Contract) checkOwnership(insts []Instruction, result *Result) {
	owner := []string{c.User, strconv.Itoa(c.UID)}
	for _, inst := range insts {
		if inst.Cmd != "RUN" || !strings.Contains(inst.Args, "chown -R") {
			continue
		}
		words := inst.Words()
		if !containsWord(words, c.Workdir) && !containsWord(words, c.Workdir+"/") {
			continue
		}
		for _, o := range owner {
			if strings.Contains(inst.Args, " "+o+":") || containsWord(words, o) {
				return
			}
		}
	}

	copies := 0
	for _, inst := range insts {
		if inst.Cmd != "COPY" && inst.Cmd != "ADD" {
			continue
		}
		dest := inst.CopyDest()
		if path.IsAbs(dest) && !strings.HasPrefix(dest, c.Workdir) {
			continue
		}
		copies++
		if _, ok := inst.Flag("chown"); !ok {
			result.addError(RuleOwnership, inst.Line, inst.Cmd, "%s into %s without --chown and no recursive chown of %s", inst.Cmd, dest, c.Workdir)
			return
		}
	}
	if copies == 0 {
		result.addError(RuleOwnership, 0, "RUN", "%s is not chowned to %s", c.Workdir, c.User)
	}
}

// checkStartCommand verifies the entrypoint runs the start subcommand of a
// binary that some stage actually builds.
func (c Contract) checkStartCommand(df *Dockerfile, insts []Instruction, command []string, result *Result) {
	if len(command) == 0 {
		result.addError(RuleStartCommand, 0, "CMD", "Runtime stage has no ENTRYPOINT or CMD")
		return
	}
	if !containsWord(command, c.StartCommand) {
		result.addError(RuleStartCommand, 0, "CMD", "Start command %q does not run '%s'", strings.Join(command, " "), c.StartCommand)
	}

	exe := command[0]
	if builds(insts, path.Base(exe)) {
		return
	}
	for _, inst := range insts {
		ref, ok := inst.Flag("from")
		if inst.Cmd != "COPY" || !ok {
			continue
		}
		dest := inst.CopyDest()
		for _, src := range inst.CopySources() {
			target := dest
			if strings.HasSuffix(dest, "/") {
				target = path.Join(dest, path.Base(src))
			}
			if target != exe && path.Base(target) != exe {
				continue
			}
			stage, found := df.StageByRef(ref)
			if !found {
				result.addError(RuleStartCommand, inst.Line, inst.Cmd, "COPY --from=%s references an unknown stage", ref)
				return
			}
			if builds(df.StageInstructions(stage.Index), path.Base(src)) {
				return
			}
			result.addError(RuleStartCommand, inst.Line, inst.Cmd, "Stage %s does not build %s", ref, src)
			return
		}
	}
	result.addError(RuleStartCommand, 0, "CMD", "Executable %s is not built or copied into the runtime stage", exe)
}

func (c Contract) checkWorkdir(stage Stage, insts []Instruction, result *Result) {
	workdir := ""
	for _, inst := range insts {
		if inst.Cmd == "WORKDIR" {
			workdir = strings.TrimSpace(inst.Args)
		}
	}
	if workdir != c.Workdir {
		result.addError(RuleWorkdir, stage.Line, "WORKDIR", "Runtime working directory must be %s, found %q", c.Workdir, workdir)
	}
}

// startCommand joins the last ENTRYPOINT and CMD of a stage the way the
// runtime does for exec form.
func startCommand(insts []Instruction) []string {
	var entrypoint, cmd []string
	for _, inst := range insts {
		switch inst.Cmd {
		case "ENTRYPOINT":
			entrypoint = inst.Words()
		case "CMD":
			cmd = inst.Words()
		}
	}
	return append(append([]string{}, entrypoint...), cmd...)
}

// builds reports whether a RUN in insts runs "go build -o" into a file named binary.
func builds(insts []Instruction, binary string) bool {
	for _, inst := range insts {
		if inst.Cmd != "RUN" || !strings.Contains(inst.Args, "go build") {
			continue
		}
		if out, ok := flagValue(inst.Words(), "-o"); ok && path.Base(out) == binary {
			return true
		}
	}
	return false
}

// flagValue finds "--name value" or "--name=value" in words.
func flagValue(words []string, name string) (string, bool) {
	for i, w := range words {
		if w == name && i+1 < len(words) {
			return words[i+1], true
		}
		if strings.HasPrefix(w, name+"=") {
			return strings.TrimPrefix(w, name+"="), true
		}
	}
	return "", false
}

func containsWord(words []string, want string) bool {
	for _, w := range words {
		if w == want {
			return true
		}
	}
	return false
}
