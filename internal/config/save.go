package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/iagocq/amicus/internal/log"
)

// WriteDefaultConfig creates a commented default config file at
// configPath. Creates the parent directory if needed and writes
// atomically (temp file, then rename).
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(defaultConfigNode()); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, "config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}

// defaultConfigNode builds the default config as a yaml.Node tree so the
// written file carries comments.
func defaultConfigNode() *yaml.Node {
	cfg := Defaults()

	root := &yaml.Node{Kind: yaml.MappingNode}

	addPair(root, key("listen_ip", "Address and port the worker listener binds to"),
		scalar(cfg.ListenIP))
	addPair(root, key("listen_port", ""),
		scalar(strconv.Itoa(cfg.ListenPort)))
	addPair(root, key("ip_block", ""),
		quoted("", "restrict workers to a CIDR block, e.g. 10.0.0.0/8"))
	addPair(root, key("interface", ""),
		quoted("", "bind to this interface's first IPv4 address instead"))

	ntfy := &yaml.Node{Kind: yaml.MappingNode}
	addPair(ntfy, key("url", ""), scalar(cfg.Ntfy.URL))
	addPair(ntfy, key("topic", ""), quoted("", "notifications stay off until a topic is set"))
	addPair(root, key("ntfy",
		"Push notifications for worker alerts and server errors.\n"+
			"Any ntfy-compatible endpoint works; {topic} is replaced with the topic."),
		ntfy)

	watchdog := &yaml.Node{Kind: yaml.MappingNode}
	addPair(watchdog, key("idle_timeout", ""), scalar(cfg.Watchdog.IdleTimeout.String()))
	addPair(root, key("watchdog",
		"Sessions that send nothing for idle_timeout are kicked; 0s disables."),
		watchdog)

	theme := &yaml.Node{Kind: yaml.MappingNode}
	addPair(theme, key("highlight", ""), quoted("", "e.g. \"#54A0FF\""))
	addPair(theme, key("subtle", ""), quoted("", ""))
	addPair(theme, key("error", ""), quoted("", ""))
	addPair(theme, key("success", ""), quoted("", ""))
	addPair(root, key("theme",
		"Dashboard colors as hex strings; empty keeps the defaults."),
		theme)

	logging := &yaml.Node{Kind: yaml.MappingNode}
	addPair(logging, key("level", ""), quoted(cfg.Log.Level, "debug, info, warn, error"))
	addPair(logging, key("file", ""), quoted("", "defaults to ~/.config/amicus/amicus.log"))
	addPair(root, key("log", "Logging (file logging is enabled by --debug)"), logging)

	tracing := &yaml.Node{Kind: yaml.MappingNode}
	addPair(tracing, key("enabled", ""), scalar(strconv.FormatBool(cfg.Tracing.Enabled)))
	addPair(tracing, key("exporter", ""), quoted(cfg.Tracing.Exporter, "file, stdout, or otlp"))
	addPair(tracing, key("file_path", ""), quoted("", "defaults to ~/.config/amicus/traces/traces.jsonl"))
	addPair(tracing, key("otlp_endpoint", ""), quoted(cfg.Tracing.OTLPEndpoint, ""))
	addPair(tracing, key("sample_rate", ""),
		scalar(strconv.FormatFloat(cfg.Tracing.SampleRate, 'f', 1, 64)))
	addPair(root, key("tracing", "Session tracing; every worker session becomes one span."), tracing)

	root.Content[0].HeadComment = "Amicus Configuration\n\n" + root.Content[0].HeadComment

	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

func addPair(mapping *yaml.Node, k, v *yaml.Node) {
	mapping.Content = append(mapping.Content, k, v)
}

func key(name, comment string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: name, HeadComment: comment}
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

// quoted forces string style so empty values render as "" instead of
// nothing.
func quoted(value, comment string) *yaml.Node {
	return &yaml.Node{
		Kind:        yaml.ScalarNode,
		Style:       yaml.DoubleQuotedStyle,
		Value:       value,
		LineComment: comment,
	}
}
