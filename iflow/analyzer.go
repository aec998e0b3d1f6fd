package iflow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"cireview.evalgo.org/common"
)

// Analyzer composes unpacking, structural parsing and the security check
// into the single analysis entry point for one artifact.
//
// An Analyzer holds no per-invocation state and is safe for concurrent
// use from independent goroutines: every Analyze call owns its own
// scratch directory and result record.
type Analyzer struct {
	log      *logrus.Logger
	parser   *Parser
	security *SecurityChecker
	unpacker *Unpacker
}

// NewAnalyzer returns an analyzer logging through log, or through the
// global logger when log is nil.
func NewAnalyzer(log *logrus.Logger) *Analyzer {
	if log == nil {
		log = common.Logger
	}
	return &Analyzer{
		log:      log,
		parser:   NewParser(log),
		security: NewSecurityChecker(log),
		unpacker: NewUnpacker(log),
	}
}

// SetStrictSecurity toggles the missing-authentication policy of the
// security checker (see SecurityChecker.Strict).
func (a *Analyzer) SetStrictSecurity(strict bool) {
	a.security.Strict = strict
}

// Analyze inspects the artifact at path and returns a fully populated
// result record. It never panics and never returns nil: analysis problems
// short of being unable to read the artifact at all degrade into
// ProcessingErrors, and even a missing or corrupt artifact comes back as
// a record with the Error field set.
func (a *Analyzer) Analyze(path string) *ExtractionResult {
	return a.AnalyzeArtifact(path, "", "")
}

// AnalyzeArtifact is Analyze with an explicit artifact identity, used by
// callers that already know which designtime artifact the file belongs
// to. Identity is always passed in rather than carried as analyzer state.
func (a *Analyzer) AnalyzeArtifact(path, artifactID, artifactName string) *ExtractionResult {
	res := NewExtractionResult(path)
	res.ArtifactID = artifactID
	if artifactName != "" {
		res.ArtifactName = artifactName
	} else if base := filepath.Base(path); strings.Contains(base, "____") {
		// Downloaded artifacts are stored as <name>____<timestamp>.<ext>.
		res.ArtifactName = strings.SplitN(base, "____", 2)[0]
	}

	if _, err := os.Stat(path); err != nil {
		res.Error = fmt.Sprintf("file does not exist: %s", path)
		a.log.WithField("path", path).Error(res.Error)
		return res
	}

	a.log.WithField("path", path).Info("analyzing IFlow artifact")

	switch DetectKind(path) {
	case KindZip:
		a.analyzeZip(path, res)
	case KindXML:
		a.analyzeXMLFile(path, res)
	default:
		a.analyzeUnknown(path, res)
	}
	return res
}

func (a *Analyzer) analyzeZip(path string, res *ExtractionResult) {
	arch, err := a.unpacker.Unpack(path)
	if err != nil {
		res.Error = fmt.Sprintf("extraction error: %v", err)
		a.log.WithError(err).Error("could not unpack artifact archive")
		return
	}
	defer func() {
		if err := arch.Close(); err != nil {
			a.log.WithError(err).Warn("scratch directory cleanup failed")
		}
	}()

	res.ProcessingErrors = append(res.ProcessingErrors, arch.Errors...)

	a.processProjectFile(arch.Dir, res)
	a.processMetaInfo(arch.Dir, res)
	a.processManifest(arch.Dir, res)

	props := a.collectProperties(arch.Dir, path, res)

	defFiles := a.findDefinitionFiles(arch.Dir)
	if len(defFiles) == 0 {
		res.addProcessingError("no IFlow definition files found in archive")
		return
	}
	a.log.WithField("count", len(defFiles)).Debug("found potential IFlow definition files")

	securityChecked := false
	for _, defFile := range defFiles {
		data, err := os.ReadFile(defFile)
		if err != nil {
			res.addProcessingError(fmt.Sprintf("error reading %s: %v", defFile, err))
			continue
		}
		if rel, err := filepath.Rel(arch.Dir, defFile); err == nil {
			res.ProjectFiles = append(res.ProjectFiles, rel)
		}
		content := string(data)
		a.parser.Parse(content, res)
		mergeSecurity(res, a.security.Check(content, props), &securityChecked)
	}
}

func (a *Analyzer) analyzeXMLFile(path string, res *ExtractionResult) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read file %s: %v", path, err)
		return
	}
	res.ProjectFiles = append(res.ProjectFiles, filepath.Base(path))

	props := a.siblingProperties(path, res)
	content := string(data)
	a.parser.Parse(content, res)

	checked := false
	mergeSecurity(res, a.security.Check(content, props), &checked)
}

// analyzeUnknown re-sniffs the content of a file with an unhelpful
// extension and retries it as ZIP or XML before settling for regex
// extraction over the raw text.
func (a *Analyzer) analyzeUnknown(path string, res *ExtractionResult) {
	header, err := readHeader(path, 1000)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read file %s: %v", path, err)
		return
	}

	switch SniffKind(header) {
	case KindZip:
		a.log.Info("file appears to be ZIP despite extension, processing as ZIP")
		a.analyzeZip(path, res)
		return
	case KindXML:
		a.log.Info("file appears to be XML despite extension, processing as XML")
		a.analyzeXMLFile(path, res)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read file %s: %v", path, err)
		return
	}
	content := string(data)
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<") && (strings.Contains(content, "<?xml") || strings.Contains(content, "<bpmn")) {
		a.analyzeXMLFile(path, res)
		return
	}

	a.log.Info("processing unknown file with regex extraction")
	extractWithRegex(content, res)
	checked := false
	mergeSecurity(res, a.security.Check(content, a.siblingProperties(path, res)), &checked)
}

// mergeSecurity folds one security report into the result. The first
// report determines the initial compliance value; any later non-compliant
// report keeps the result non-compliant.
func mergeSecurity(res *ExtractionResult, rep SecurityReport, checked *bool) {
	if !*checked {
		res.SecurityCompliant = rep.Compliant
		*checked = true
	} else if !rep.Compliant {
		res.SecurityCompliant = false
	}
	res.SecurityMethods = uniqueStrings(append(res.SecurityMethods, rep.Methods...))
	res.SecurityIssues = uniqueStrings(append(res.SecurityIssues, rep.Issues...))
	res.SecurityDetails = uniqueStrings(append(res.SecurityDetails, rep.Details...))
}

// collectProperties builds the PropertyMap for the artifact: property
// files found inside the archive first, the sibling parameters.prop next
// to the artifact as a fallback when the archive had none.
func (a *Analyzer) collectProperties(dir, artifactPath string, res *ExtractionResult) PropertyMap {
	props := PropertyMap{}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".prop") {
			return nil
		}
		if !strings.Contains(name, "parameter") && !strings.Contains(name, "propert") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			res.addProcessingError(fmt.Sprintf("error reading property file %s: %v", d.Name(), err))
			return nil
		}
		props.Merge(ExtractProperties(string(data)), a.log)
		return nil
	})

	if len(props) == 0 {
		props = a.siblingProperties(artifactPath, res)
	}
	a.log.WithField("count", len(props)).Debug("collected artifact properties")
	return props
}

// siblingProperties reads parameters.prop sitting alongside the artifact
// on disk, if present.
func (a *Analyzer) siblingProperties(artifactPath string, res *ExtractionResult) PropertyMap {
	props := PropertyMap{}
	paramsPath := filepath.Join(filepath.Dir(artifactPath), "parameters.prop")
	data, err := os.ReadFile(paramsPath)
	if err != nil {
		return props
	}
	props = ExtractProperties(string(data))
	res.ProjectFiles = append(res.ProjectFiles, "parameters.prop")
	return props
}

// maxDefinitionScan bounds how many files each search tier examines, so
// pathological archives cannot blow up analysis time.
const maxDefinitionScan = 50

var definitionMarkers = []string{"<IntegrationFlow", "<ifl:", "<bpmn2:", "<bpmn:"}

// findDefinitionFiles locates the most plausible IFlow definition files
// in the scratch directory through a tiered search: .iflw files and XML
// files carrying BPMN/IFL markers first, any XML file next, and finally
// any text-like file containing angle brackets.
func (a *Analyzer) findDefinitionFiles(dir string) []string {
	var found []string

	scanned := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if scanned >= maxDefinitionScan {
			return fs.SkipAll
		}
		switch {
		case strings.HasSuffix(path, ".iflw"):
			scanned++
			found = append(found, path)
		case strings.HasSuffix(path, ".xml"):
			scanned++
			sample, err := readHeader(path, 1000)
			if err != nil {
				return nil
			}
			if containsAny(string(sample), definitionMarkers...) {
				found = append(found, path)
			}
		}
		return nil
	})
	if len(found) > 0 {
		return found
	}

	scanned = 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if scanned >= maxDefinitionScan {
			return fs.SkipAll
		}
		if strings.HasSuffix(path, ".xml") {
			scanned++
			found = append(found, path)
		}
		return nil
	})
	if len(found) > 0 {
		a.log.WithField("count", len(found)).Debug("no specific IFlow files found, using plain XML files")
		return found
	}

	scanned = 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if scanned >= maxDefinitionScan {
			return fs.SkipAll
		}
		if strings.HasSuffix(path, ".class") || strings.HasSuffix(path, ".jar") {
			return nil
		}
		sample, err := readHeader(path, 100)
		if err != nil {
			return nil
		}
		if strings.Contains(string(sample), "<") && strings.Contains(string(sample), ">") {
			scanned++
			found = append(found, path)
		}
		return nil
	})
	return found
}

var reProjectName = regexp.MustCompile(`<name>([^<]+)</name>`)

// processProjectFile reads the Eclipse-style .project descriptor for the
// project name, falling back to regex when the file is not parseable XML.
func (a *Analyzer) processProjectFile(dir string, res *ExtractionResult) {
	data, err := os.ReadFile(filepath.Join(dir, ".project"))
	if err != nil {
		return
	}
	res.ProjectFiles = append(res.ProjectFiles, ".project")

	if root, err := parseDocument(string(data)); err == nil {
		if nameEl := root.childFirst(func(e *element) bool { return e.Local == "name" }); nameEl != nil && nameEl.text() != "" {
			res.ArtifactName = nameEl.text()
			return
		}
	}
	if m := reProjectName.FindStringSubmatch(string(data)); m != nil {
		res.ArtifactName = m[1]
	}
}

// processMetaInfo reads metainfo.prop into the result's MetaInfo map and
// promotes the display name when present.
func (a *Analyzer) processMetaInfo(dir string, res *ExtractionResult) {
	data, err := os.ReadFile(filepath.Join(dir, "metainfo.prop"))
	if err != nil {
		return
	}
	res.ProjectFiles = append(res.ProjectFiles, "metainfo.prop")

	for key, value := range ExtractProperties(string(data)) {
		res.MetaInfo[key] = value
		switch key {
		case "artifactDisplayName", "iflowName", "name":
			res.ArtifactName = value
		}
	}
	a.log.WithField("count", len(res.MetaInfo)).Debug("parsed metainfo.prop")
}

// processManifest locates and parses the first MANIFEST.MF, handling the
// JAR-manifest continuation-line convention (a leading space continues
// the previous header value).
func (a *Analyzer) processManifest(dir string, res *ExtractionResult) {
	candidates := []string{
		filepath.Join(dir, "META-INF", "MANIFEST.MF"),
		filepath.Join(dir, "MANIFEST.MF"),
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && d.Name() == "MANIFEST.MF" {
			candidates = append(candidates, path)
		}
		return nil
	})

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(dir, candidate); err == nil {
			res.ProjectFiles = append(res.ProjectFiles, rel)
		}

		currentKey := ""
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if strings.HasPrefix(line, " ") {
				if currentKey != "" {
					res.Manifest[currentKey] += strings.TrimSpace(line)
				}
				continue
			}
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			currentKey = strings.TrimSpace(key)
			res.Manifest[currentKey] = strings.TrimSpace(value)
		}
		a.log.WithField("count", len(res.Manifest)).Debug("parsed MANIFEST.MF")
		return
	}
}
