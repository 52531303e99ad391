package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/deploymenttheory/go-ataraid/internal/config"
)

// Context holds application-wide configuration and state
type Context struct {
	context.Context

	// Loaded configuration
	Config *config.Config

	// Output preferences
	OutputFormat string
	Verbose      bool
	Quiet        bool
	NoColor      bool

	// Where results and diagnostics are written
	Out    io.Writer
	ErrOut io.Writer

	// Bounds metadata scans; rebuilds run until done or interrupted
	DefaultTimeout time.Duration

	// Progress reporting
	ProgressCallback func(message string, percent int)
}

// NewContext creates a new application context
func NewContext() *Context {
	return &Context{
		Context:        context.Background(),
		Config:         config.Default(),
		OutputFormat:   "table",
		Out:            os.Stdout,
		ErrOut:         os.Stderr,
		DefaultTimeout: 30 * time.Second,
	}
}

// WithTimeout creates a context with timeout
func (c *Context) WithTimeout(timeout time.Duration) (*Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context, timeout)
	newCtx := *c
	newCtx.Context = ctx
	return &newCtx, cancel
}

// SetProgress sets the progress callback function
func (c *Context) SetProgress(callback func(string, int)) {
	c.ProgressCallback = callback
}

// Progress reports progress if callback is set
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(message, percent)
	}
}

// Log outputs a message based on verbosity settings
func (c *Context) Log(message string) {
	if !c.Quiet && c.Verbose {
		fmt.Fprintln(c.errOut(), message)
	}
}

// Warn outputs a warning unless quiet
func (c *Context) Warn(message string) {
	if !c.Quiet {
		fmt.Fprintln(c.errOut(), "Warning:", message)
	}
}

// Writer returns the destination for command results
func (c *Context) Writer() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) errOut() io.Writer {
	if c.ErrOut == nil {
		return os.Stderr
	}
	return c.ErrOut
}
