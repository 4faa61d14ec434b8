package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/pflag"
)

type setBy int

const (
	byDefault setBy = iota
	byConfig
	byFlag
)

// Value is a typed configuration variable: it can be set from a flag
// argument or from a decoded config file value.
type Value interface {
	Set(string) error
	SetValue(interface{}) error
	String() string
	Type() string
}

type cvar struct {
	name     string
	val      Value
	by       setBy
	noConfig bool
}

// Var is a registered variable; options chain onto it.
type Var struct {
	c  *Config
	cv *cvar
}

// NoConfig prevents the variable from being set in a config file.
func (v *Var) NoConfig() *Var {
	v.cv.noConfig = true
	return v
}

// Hide keeps the variable out of the flag usage text.
func (v *Var) Hide() *Var {
	if v.c.fs != nil {
		v.c.fs.MarkHidden(v.cv.name)
	}
	return v
}

// Config is a registry of configuration variables. Flags take precedence
// over the config file, which takes precedence over defaults.
type Config struct {
	fs   *pflag.FlagSet
	vars map[string]*cvar
}

func NewConfig(fs *pflag.FlagSet) *Config {
	return &Config{
		fs:   fs,
		vars: map[string]*cvar{},
	}
}

// flagValue is the pflag view of a variable; setting it from a flag
// records that the flag won.
type flagValue struct {
	cv *cvar
}

func (fv flagValue) Set(s string) error {
	err := fv.cv.val.Set(s)
	if err == nil {
		fv.cv.by = byFlag
	}
	return err
}

func (fv flagValue) String() string {
	return fv.cv.val.String()
}

func (fv flagValue) Type() string {
	return fv.cv.val.Type()
}

func (c *Config) variable(val Value, name, usage string) *Var {
	if _, ok := c.vars[name]; ok {
		panic(fmt.Sprintf("config: variable redefined: %s", name))
	}

	cv := &cvar{name: name, val: val}
	c.vars[name] = cv
	if c.fs != nil {
		c.fs.Var(flagValue{cv}, name, usage)
	}
	return &Var{c: c, cv: cv}
}

func (c *Config) BoolVar(p *bool, name string, b bool, usage string) *Var {
	*p = b
	return c.variable((*boolValue)(p), name, usage)
}

// Var registers p without usage text; flags use it for hidden booleans.
func (c *Config) Var(p *bool, name string) *Var {
	return c.variable((*boolValue)(p), name, "")
}

func (c *Config) IntVar(p *int, name string, i int, usage string) *Var {
	*p = i
	return c.variable((*intValue)(p), name, usage)
}

func (c *Config) Int64Var(p *int64, name string, i int64, usage string) *Var {
	*p = i
	return c.variable((*int64Value)(p), name, usage)
}

func (c *Config) StringVar(p *string, name string, s string, usage string) *Var {
	*p = s
	return c.variable((*stringValue)(p), name, usage)
}

func (c *Config) DurationVar(p *time.Duration, name string, d time.Duration, usage string) *Var {
	*p = d
	return c.variable((*durationValue)(p), name, usage)
}

// Vars calls fn for every variable in name order.
func (c *Config) Vars(fn func(name, val string)) {
	names := make([]string, 0, len(c.vars))
	for name := range c.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn(name, c.vars[name].val.String())
	}
}
