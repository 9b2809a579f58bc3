package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetYamlConfig validates and writes key into the config file at path,
// creating the file when needed. Dotted keys become nested mappings.
// Comments and unrelated keys are preserved.
func SetYamlConfig(path, key, value string) error {
	if err := ValidateKey(key, value); err != nil {
		return err
	}
	root, err := readYamlNode(path)
	if err != nil {
		return err
	}

	mapping := root.Content[0]
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		mapping = childMapping(mapping, part)
	}
	setScalar(mapping, parts[len(parts)-1], scalarFor(key, value))

	return writeYamlNode(path, root)
}

// UnsetYamlConfig removes key from the config file at path. Mappings left
// empty are removed too. A missing key is not an error.
func UnsetYamlConfig(path, key string) error {
	if Lookup(key) == nil {
		return ValidateKey(key, "")
	}
	root, err := readYamlNode(path)
	if err != nil {
		return err
	}
	removeKey(root.Content[0], strings.Split(key, "."))
	return writeYamlNode(path, root)
}

// GetYamlConfig reads key straight from the config file, ignoring defaults
// and environment. ok is false when the file does not set it.
func GetYamlConfig(path, key string) (value string, ok bool, err error) {
	root, err := readYamlNode(path)
	if err != nil {
		return "", false, err
	}
	node := root.Content[0]
	for _, part := range strings.Split(key, ".") {
		node = lookupChild(node, part)
		if node == nil {
			return "", false, nil
		}
	}
	if node.Kind != yaml.ScalarNode {
		return "", false, fmt.Errorf("%s is not a scalar value", key)
	}
	return node.Value, true, nil
}

// readYamlNode parses path into a document whose first child is a mapping.
// A missing or empty file yields an empty document.
func readYamlNode(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path) // #nosec G304 - config file path from caller
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	var root yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("failed to parse config.yaml: %w", err)
		}
	}
	// Handle empty or comment-only files by creating a valid document structure
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if root.Content[0].Kind != yaml.MappingNode {
		root.Content[0] = &yaml.Node{Kind: yaml.MappingNode}
	}
	return &root, nil
}

func writeYamlNode(path string, root *yaml.Node) error {
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return fmt.Errorf("failed to encode config.yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write config.yaml: %w", err)
	}

	// Reload so changes take effect in this process too.
	if v != nil && path == filePath {
		if err := v.ReadInConfig(); err != nil {
			// Not fatal - config is on disk, will be picked up on next command
			_ = err
		}
	}
	return nil
}

func lookupChild(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// childMapping returns the mapping stored under key, creating or replacing
// it when absent or not a mapping.
func childMapping(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		if mapping.Content[i+1].Kind != yaml.MappingNode {
			mapping.Content[i+1] = &yaml.Node{Kind: yaml.MappingNode}
		}
		return mapping.Content[i+1]
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
	return child
}

func setScalar(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			// Keep any comment attached to the old value.
			value.LineComment = mapping.Content[i+1].LineComment
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
}

func removeKey(mapping *yaml.Node, parts []string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != parts[0] {
			continue
		}
		if len(parts) == 1 {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
		child := mapping.Content[i+1]
		if child.Kind != yaml.MappingNode {
			return
		}
		removeKey(child, parts[1:])
		if len(child.Content) == 0 {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
		}
		return
	}
}

// scalarFor builds the YAML scalar for value. String-typed keys are tagged
// so values such as "yes" or "0" stay strings.
func scalarFor(key, value string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	if k := Lookup(key); k != nil {
		switch k.Default.(type) {
		case string:
			node.Tag = "!!str"
		case bool:
			node.Value = normalizeBool(value)
		}
	}
	return node
}

func normalizeBool(value string) string {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return "true"
	default:
		return "false"
	}
}
