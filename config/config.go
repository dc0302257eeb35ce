// Package config parses line based command files:
//
//	# comment
//	sv_app_id 100
//	sv_bind "[::1]:5000"; sv_max_clients 32
//
// Every command is a name followed by arguments. Arguments may be quoted,
// an unquoted ';' separates commands and an unquoted '#' starts a comment.
package config

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

var (
	ErrNotACommand      = errors.New("not a config command")
	ErrIsComment        = errors.New("is a comment")
	ErrCommandListIsNil = errors.New("command list is nil (uninitialized)")
	ErrUnterminated     = errors.New("unterminated quoted argument")
	ErrNotFound         = errors.New("command not found")
	ErrArgumentCount    = errors.New("unexpected number of arguments")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// NewConfig initializes a new and empty command list
func NewConfig() Config {
	return make(Config, 0, 1)
}

// ParseConfigBytes parses a config from a byte slice
func ParseConfigBytes(data []byte) (Config, error) {
	var c Config
	err := c.UnmarshalText(data)
	return c, err
}

// ParseConfigReader parses a config from an io.Reader
func ParseConfigReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseConfigBytes(data)
}

// ParseConfigFile parses the config file at path.
func ParseConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c, err := ParseConfigBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return c, nil
}

type Config []Command

func (cc Config) MarshalText() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 64*len(cc)))
	for _, cmd := range cc {
		txt, err := cmd.MarshalText()
		if err != nil {
			return nil, err
		}
		buf.Write(txt)
		buf.WriteRune('\n')
	}
	return buf.Bytes(), nil
}

func (cc *Config) UnmarshalText(data []byte) error {
	if cc == nil {
		return ErrCommandListIsNil
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))

	commands := make([]Command, 0, 4)
	for line := 1; scanner.Scan(); line++ {
		cmds, err := parseLine(scanner.Bytes())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		commands = append(commands, cmds...)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	*cc = commands
	return nil
}

// Lookup returns the last command called name. Later commands override
// earlier ones.
func (cc Config) Lookup(name string) (Command, bool) {
	for i := len(cc) - 1; i >= 0; i-- {
		if cc[i].Name == name {
			return cc[i], true
		}
	}
	return Command{}, false
}

// Arg returns the single argument of command name.
func (cc Config) Arg(name string) (string, error) {
	cmd, ok := cc.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if len(cmd.Args) != 1 {
		return "", fmt.Errorf("%w: %s expects 1, got %d", ErrArgumentCount, name, len(cmd.Args))
	}
	return cmd.Args[0], nil
}

func (cc Config) String(name, fallback string) (string, error) {
	arg, err := cc.Arg(name)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return arg, err
}

func (cc Config) Uint64(name string, fallback uint64) (uint64, error) {
	arg, err := cc.Arg(name)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	} else if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return v, nil
}

func (cc Config) Int(name string, fallback int) (int, error) {
	arg, err := cc.Arg(name)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	} else if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return v, nil
}

func (cc Config) Float64(name string, fallback float64) (float64, error) {
	arg, err := cc.Arg(name)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	} else if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return v, nil
}

// Hex decodes the hex encoded argument of command name. The command is required.
func (cc Config) Hex(name string) ([]byte, error) {
	arg, err := cc.Arg(name)
	if err != nil {
		return nil, err
	}
	v, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return v, nil
}

type Command struct {
	Name string
	Args []string
}

func (c *Command) MarshalText() ([]byte, error) {
	size := len(c.Name)
	for _, arg := range c.Args {
		size += len(arg) + 3
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))

	buf.WriteString(c.Name)
	for _, arg := range c.Args {
		buf.WriteRune(' ')
		buf.WriteString(strconv.Quote(arg))
	}
	return buf.Bytes(), nil
}

// UnmarshalText parses a line that contains exactly one command.
func (c *Command) UnmarshalText(data []byte) error {
	cmds, err := parseLine(data)
	if err != nil {
		return err
	}
	switch len(cmds) {
	case 0:
		if isComment(data) {
			return fmt.Errorf("%w: %w", ErrNotACommand, ErrIsComment)
		}
		return ErrNotACommand
	case 1:
		*c = cmds[0]
		return nil
	default:
		return fmt.Errorf("%w: %d commands in one line", ErrNotACommand, len(cmds))
	}
}
