// SPDX-License-Identifier: MIT

// Package menu provides an interactive terminal menu system using
// charmbracelet/huh, driving recorderctl's "menu" subcommand so an
// operator can browse recordings, saved streams, storage, and settings
// without memorizing the command table in spec.md 6.
package menu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/gnimrodg/rtsp-recorder/internal/command"
	"github.com/gnimrodg/rtsp-recorder/internal/custodian"
	"github.com/gnimrodg/rtsp-recorder/internal/diagnostics"
	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/rtsp"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

// MenuItem represents a single menu option.
type MenuItem struct {
	Key         string       // Key identifier (e.g., "1", "q")
	Label       string       // Display label
	Description string       // Optional description
	Action      func() error // Action to execute
	SubMenu     *Menu        // Optional submenu
	Hidden      bool         // If true, not displayed but still accessible
}

// Menu represents a menu with multiple items.
type Menu struct {
	Title       string
	Items       []MenuItem
	Footer      string
	input       io.Reader
	output      io.Writer
	clearScreen bool
	accessible  bool // Enable accessible mode for screen readers
}

// Option is a functional option for configuring menus.
type Option func(*Menu)

// WithInput sets the input reader (for testing).
func WithInput(r io.Reader) Option {
	return func(m *Menu) {
		m.input = r
	}
}

// WithOutput sets the output writer (for testing).
func WithOutput(w io.Writer) Option {
	return func(m *Menu) {
		m.output = w
	}
}

// WithClearScreen enables screen clearing between displays.
func WithClearScreen(clear bool) Option {
	return func(m *Menu) {
		m.clearScreen = clear
	}
}

// WithAccessible enables accessible mode for screen readers.
func WithAccessible(accessible bool) Option {
	return func(m *Menu) {
		m.accessible = accessible
	}
}

// New creates a new menu.
func New(title string, opts ...Option) *Menu {
	m := &Menu{
		Title:       title,
		input:       os.Stdin,
		output:      os.Stdout,
		clearScreen: true,
		accessible:  false,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// AddItem adds an item to the menu.
func (m *Menu) AddItem(item MenuItem) {
	m.Items = append(m.Items, item)
}

// AddSeparator adds a visual separator.
func (m *Menu) AddSeparator() {
	m.Items = append(m.Items, MenuItem{Key: "", Label: ""})
}

// Display shows the menu and waits for user input.
// Returns when the user selects an action or exits.
func (m *Menu) Display() error {
	// Check if we're in test mode (non-TTY input)
	if m.input != os.Stdin {
		return m.displayWithScanner()
	}

	for {
		if m.clearScreen {
			clearScreen(m.output)
		}

		// Build options for huh.Select
		var options []huh.Option[string]
		for _, item := range m.Items {
			if item.Key == "" && item.Label == "" {
				// Skip separators in huh (they don't support separators directly)
				continue
			}
			if item.Hidden {
				continue
			}
			label := fmt.Sprintf("%s. %s", item.Key, item.Label)
			options = append(options, huh.NewOption(label, item.Key))
		}

		if len(options) == 0 {
			return nil
		}

		var choice string
		selector := huh.NewSelect[string]().
			Title(m.Title).
			Options(options...).
			Value(&choice)

		form := huh.NewForm(huh.NewGroup(selector)).
			WithAccessible(m.accessible)

		err := form.Run()
		if err != nil {
			// Handle Ctrl+C or other interrupts
			if err == huh.ErrUserAborted {
				return nil
			}
			return err
		}

		// Check for exit keys
		if choice == "0" || choice == "q" || choice == "Q" {
			return nil
		}

		// Find and execute the matching item
		for _, item := range m.Items {
			if item.Key == choice {
				if item.SubMenu != nil {
					// Copy options to submenu
					item.SubMenu.accessible = m.accessible
					if err := item.SubMenu.Display(); err != nil {
						return err
					}
				} else if item.Action != nil {
					if err := item.Action(); err != nil {
						_, _ = fmt.Fprintf(m.output, "\nError: %v\n", err)
						WaitForKey(m.input, m.output, "")
					}
				}
				break
			}
		}
	}
}

// displayWithScanner provides a fallback for non-TTY input (testing).
func (m *Menu) displayWithScanner() error {
	scanner := bufio.NewScanner(m.input)

	for {
		if m.clearScreen {
			clearScreen(m.output)
		}

		m.render()

		_, _ = fmt.Fprint(m.output, "\nSelect option: ")

		if !scanner.Scan() {
			return nil // EOF or input closed
		}

		choice := strings.TrimSpace(scanner.Text())
		if choice == "" {
			continue
		}

		// Find matching item
		for _, item := range m.Items {
			if item.Key == choice {
				if item.SubMenu != nil {
					if err := item.SubMenu.Display(); err != nil {
						return err
					}
				} else if item.Action != nil {
					if err := item.Action(); err != nil {
						_, _ = fmt.Fprintf(m.output, "\nError: %v\n", err)
						_, _ = fmt.Fprint(m.output, "Press Enter to continue...")
						scanner.Scan()
					}
				}
				break
			}
		}

		// Check for exit keys
		if choice == "0" || choice == "q" || choice == "Q" {
			return nil
		}
	}
}

// render draws the menu using box characters (for scanner fallback mode).
func (m *Menu) render() {
	// Calculate width based on longest item
	width := len(m.Title)
	for _, item := range m.Items {
		itemLen := len(item.Key) + len(item.Label) + 5
		if itemLen > width {
			width = itemLen
		}
	}
	if width < 40 {
		width = 40
	}

	// Draw box
	border := strings.Repeat("═", width)
	_, _ = fmt.Fprintf(m.output, "╔%s╗\n", border)
	_, _ = fmt.Fprintf(m.output, "║%s║\n", centerText(m.Title, width))
	_, _ = fmt.Fprintf(m.output, "╠%s╣\n", border)

	// Draw items
	for _, item := range m.Items {
		if item.Key == "" && item.Label == "" {
			// Separator
			_, _ = fmt.Fprintf(m.output, "╟%s╢\n", strings.Repeat("─", width))
		} else if item.Hidden {
			continue
		} else {
			text := fmt.Sprintf("  %s. %s", item.Key, item.Label)
			_, _ = fmt.Fprintf(m.output, "║%-*s║\n", width, text)
		}
	}

	_, _ = fmt.Fprintf(m.output, "╚%s╝\n", border)

	if m.Footer != "" {
		_, _ = fmt.Fprintf(m.output, "\n%s\n", m.Footer)
	}
}

// centerText centers text within a given width.
func centerText(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text + strings.Repeat(" ", width-len(text)-padding)
}

// clearScreen clears the terminal screen.
func clearScreen(w io.Writer) {
	// ANSI escape sequence to clear screen and move cursor to top-left
	_, _ = fmt.Fprint(w, "\033[2J\033[H")
}

// WaitForKey waits for the user to press Enter.
func WaitForKey(r io.Reader, w io.Writer, prompt string) {
	if prompt == "" {
		prompt = "Press Enter to continue..."
	}
	_, _ = fmt.Fprint(w, prompt)
	bufio.NewScanner(r).Scan()
}

// Confirm asks the user for confirmation using huh.
func Confirm(r io.Reader, w io.Writer, prompt string) bool {
	// If not using stdin, fall back to scanner-based input
	if r != os.Stdin {
		return confirmWithScanner(r, w, prompt)
	}

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return false
	}
	return confirmed
}

// confirmWithScanner provides scanner-based confirmation for testing.
func confirmWithScanner(r io.Reader, w io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(w, "%s [y/N]: ", prompt)

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}

	response := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return response == "y" || response == "yes"
}

// Select presents options and returns the selected index using huh.
func Select(r io.Reader, w io.Writer, prompt string, options []string) int {
	// If not using stdin, fall back to scanner-based input
	if r != os.Stdin {
		return selectWithScanner(r, w, prompt, options)
	}

	var choice int
	var huhOptions []huh.Option[int]
	for i, opt := range options {
		huhOptions = append(huhOptions, huh.NewOption(opt, i))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(prompt).
				Options(huhOptions...).
				Value(&choice),
		),
	)

	if err := form.Run(); err != nil {
		return -1
	}
	return choice
}

// selectWithScanner provides scanner-based selection for testing.
func selectWithScanner(r io.Reader, w io.Writer, prompt string, options []string) int {
	_, _ = fmt.Fprintln(w, prompt)
	for i, opt := range options {
		_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, opt)
	}
	_, _ = fmt.Fprint(w, "Selection: ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return -1
	}

	var choice int
	_, err := fmt.Sscanf(strings.TrimSpace(scanner.Text()), "%d", &choice)
	if err != nil || choice < 1 || choice > len(options) {
		return -1
	}

	return choice - 1
}

// Input prompts for text input using huh.
func Input(r io.Reader, w io.Writer, prompt string) string {
	// If not using stdin, fall back to scanner-based input
	if r != os.Stdin {
		return inputWithScanner(r, w, prompt)
	}

	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(prompt).
				Value(&value),
		),
	)

	if err := form.Run(); err != nil {
		return ""
	}
	return value
}

// inputWithScanner provides scanner-based input for testing.
func inputWithScanner(r io.Reader, w io.Writer, prompt string) string {
	_, _ = fmt.Fprintf(w, "%s: ", prompt)

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// RunCommand runs a shell command and displays output.
func RunCommand(w io.Writer, name string, args ...string) error {
	cmd := exec.Command(name, args...) // #nosec G204 G702 -- caller is responsible for providing safe command name and args
	cmd.Stdout = w
	cmd.Stderr = w
	return cmd.Run()
}

// Client is the subset of internal/command.Surface the menu drives. An
// interface so tests can exercise menu flows against a fake instead of a
// fully wired Surface.
type Client interface {
	ListRecordings() []command.RecordingView
	CreateRecording(in command.CreateInput) (command.RecordingView, error)
	StopRecording(id string) error
	ListSavedStreams() []persistence.SavedStream
	ProbeStream(ctx context.Context, rawURL string, timeout time.Duration) rtsp.Result
	GetStorageStats() command.StorageStats
	RunStorageCleanup(ctx context.Context) custodian.Result
	GetSettings() settings.Settings
}

// CreateMainMenu builds the root menu for recorderctl's interactive mode,
// driving client for every action and diag for the diagnostics submenu.
func CreateMainMenu(client Client, diag *diagnostics.Runner) *Menu {
	menu := New("rtsp-recorder")

	menu.AddItem(MenuItem{
		Key:     "1",
		Label:   "Recordings",
		SubMenu: createRecordingsMenu(client),
	})
	menu.AddItem(MenuItem{
		Key:     "2",
		Label:   "Saved Streams / Probe",
		SubMenu: createStreamsMenu(client),
	})
	menu.AddItem(MenuItem{
		Key:     "3",
		Label:   "Storage",
		SubMenu: createStorageMenu(client),
	})
	menu.AddItem(MenuItem{
		Key:   "4",
		Label: "Show Effective Settings",
		Action: func() error {
			s := client.GetSettings()
			_, _ = fmt.Fprintf(os.Stdout, "%+v\n", s)
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})
	menu.AddItem(MenuItem{
		Key:   "5",
		Label: "Run Diagnostics",
		Action: func() error {
			report, err := diag.Run(context.Background())
			if err != nil {
				return err
			}
			diagnostics.PrintReport(os.Stdout, report)
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddSeparator()
	menu.AddItem(MenuItem{Key: "0", Label: "Exit"})

	return menu
}

func createRecordingsMenu(client Client) *Menu {
	menu := New("Recordings")

	menu.AddItem(MenuItem{
		Key:   "1",
		Label: "List Recordings",
		Action: func() error {
			for _, v := range client.ListRecordings() {
				_, _ = fmt.Fprintf(os.Stdout, "%s  %-10s  %-20s  %s\n", v.ID, v.Status, v.Name, v.RTSPURL)
			}
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddItem(MenuItem{
		Key:   "2",
		Label: "Schedule New Recording",
		Action: func() error {
			name := Input(os.Stdin, os.Stdout, "Name")
			url := Input(os.Stdin, os.Stdout, "RTSP URL (rtsp://...)")
			durationStr := Input(os.Stdin, os.Stdout, "Duration in seconds")
			var seconds int
			_, _ = fmt.Sscanf(durationStr, "%d", &seconds)
			v, err := client.CreateRecording(command.CreateInput{
				Name: name, RTSPURL: url, StartTime: time.Now().Add(5 * time.Second),
				Duration: time.Duration(seconds) * time.Second,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "scheduled %s\n", v.ID)
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddItem(MenuItem{
		Key:   "3",
		Label: "Stop a Recording",
		Action: func() error {
			id := Input(os.Stdin, os.Stdout, "Recording ID")
			if err := client.StopRecording(id); err != nil {
				return err
			}
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddSeparator()
	menu.AddItem(MenuItem{Key: "0", Label: "Back"})
	return menu
}

func createStreamsMenu(client Client) *Menu {
	menu := New("Saved Streams / Probe")

	menu.AddItem(MenuItem{
		Key:   "1",
		Label: "List Saved Streams",
		Action: func() error {
			for _, st := range client.ListSavedStreams() {
				_, _ = fmt.Fprintf(os.Stdout, "%s  %-20s  %s\n", st.ID, st.Name, st.RTSPURL)
			}
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddItem(MenuItem{
		Key:   "2",
		Label: "Probe a Stream",
		Action: func() error {
			url := Input(os.Stdin, os.Stdout, "RTSP URL (rtsp://...)")
			res := client.ProbeStream(context.Background(), url, 5*time.Second)
			_, _ = fmt.Fprintf(os.Stdout, "status: %s\n", res.Status)
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddSeparator()
	menu.AddItem(MenuItem{Key: "0", Label: "Back"})
	return menu
}

func createStorageMenu(client Client) *Menu {
	menu := New("Storage")

	menu.AddItem(MenuItem{
		Key:   "1",
		Label: "Show Storage Stats",
		Action: func() error {
			stats := client.GetStorageStats()
			_, _ = fmt.Fprintf(os.Stdout, "used: %.2f GB / %d GB (%.1f%%), retention: %d days\n",
				stats.UsedGB, stats.MaxGB, stats.Percentage, stats.AutoDeleteDays)
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddItem(MenuItem{
		Key:   "2",
		Label: "Run Cleanup Now",
		Action: func() error {
			if !Confirm(os.Stdin, os.Stdout, "Run a retention/quota sweep now?") {
				return nil
			}
			res := client.RunStorageCleanup(context.Background())
			_, _ = fmt.Fprintf(os.Stdout, "deleted %d expired, %d over quota\n", res.DeletedOld, res.DeletedForSpace)
			WaitForKey(os.Stdin, os.Stdout, "")
			return nil
		},
	})

	menu.AddSeparator()
	menu.AddItem(MenuItem{Key: "0", Label: "Back"})
	return menu
}
