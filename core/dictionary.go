package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"sync"
)

// Constant is a firmware constant exposed to the host.
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration is a named set of values (like pin names).
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary manages the data dictionary sent to the host. The dictionary
// describes every command, response, constant and enumeration the firmware
// supports; the host retrieves it in chunks via identify.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte // compressed dictionary, built once after init
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary bound to a command registry.
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       "pwmio-0.1.0",
		buildVersions: "go",
	}
}

// RegisterConstant registers a constant in the global dictionary.
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary.
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds a constant to the dictionary.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
}

// AddEnumeration adds an enumeration to the dictionary.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)
	d.enumerations[name] = &Enumeration{Name: name, Values: valuesCopy}
}

// SetVersion sets the firmware version string.
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

// SetBuildVersions sets the build versions string.
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
}

// BuildDictionary builds and caches the compressed dictionary. Call once
// after all commands and constants are registered.
func (d *Dictionary) BuildDictionary() {
	// fetch command data before taking the dictionary lock to keep lock
	// ordering one-way (dictionary -> registry)
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	jsonData := d.buildJSONLocked(commands, responses)

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(jsonData); err != nil {
		d.cachedDict = jsonData
		return
	}
	if err := w.Close(); err != nil {
		d.cachedDict = jsonData
		return
	}
	d.cachedDict = buf.Bytes()
}

// Generate returns the dictionary bytes: the cached compressed form when
// BuildDictionary has run, otherwise uncompressed JSON built on the fly.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	commands, responses := d.commandReg.GetCommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSONLocked(commands, responses)
}

// jsonDictionary is the wire layout of the data dictionary.
type jsonDictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// buildJSONLocked builds the JSON dictionary. Caller holds at least a read
// lock on d.mu.
func (d *Dictionary) buildJSONLocked(commands, responses map[string]int) []byte {
	doc := jsonDictionary{
		Version:       d.version,
		BuildVersions: d.buildVersions,
		Config:        make(map[string]string, len(d.constants)),
		Commands:      commands,
		Responses:     responses,
	}

	for name, c := range d.constants {
		doc.Config[name] = valueToString(c.Value)
	}

	if len(d.enumerations) > 0 {
		doc.Enumerations = make(map[string]map[string]int, len(d.enumerations))
		for name, enum := range d.enumerations {
			values := make(map[string]int, len(enum.Values))
			for i, v := range enum.Values {
				if v != "" {
					values[v] = i
				}
			}
			doc.Enumerations[name] = values
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return data
}

// GetChunk returns a chunk of the dictionary starting at offset. An empty
// chunk means the host has read past the end.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()

	if len(data) == 0 || offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance.
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
