package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"agent_office/internal/domain"
)

type embeddedOffice struct {
	cmd *exec.Cmd
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "office base URL")
	retry := flag.Duration("retry", 3*time.Second, "live channel reconnect delay")
	embedded := flag.Bool("embedded", false, "start the office server in the same monitor process lifecycle")
	officeBinary := flag.String("office-bin", "", "path to office binary (optional in embedded mode)")
	dbPath := flag.String("db", "data/embedded.db", "delivery journal path for the embedded office")
	flag.Parse()

	c := newClient(*addr)

	var embeddedProc *embeddedOffice
	var err error
	if *embedded {
		embeddedProc, err = startEmbeddedOffice(*addr, *officeBinary, *dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start embedded office: %v\n", err)
			os.Exit(1)
		}
		defer embeddedProc.Stop()
		if err := waitHealth(c, 30*time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "office health check failed: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	state := newFeed(200)
	app := tview.NewApplication()

	personasTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	personasTable.SetTitle("Bots (Enter send test message)").SetBorder(true)

	feedView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	feedView.SetTitle("Activity").SetBorder(true)

	chatInput := tview.NewInputField().
		SetLabel("Chat ID: ")
	chatInput.SetBorder(true).SetTitle("Enter = save chat id for selected bot")

	avatarInput := tview.NewInputField().
		SetLabel("Avatar URL: ")
	avatarInput.SetBorder(true).SetTitle("Enter = save avatar url for selected bot")

	tokenInput := tview.NewInputField().
		SetLabel("Bot token: ").
		SetMaskCharacter('*')
	tokenInput.SetBorder(true).SetTitle("Enter = set token (empty clears)")

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(personasTable, 0, 1, true).
		AddItem(chatInput, 3, 0, false).
		AddItem(avatarInput, 3, 0, false).
		AddItem(tokenInput, 3, 0, false)

	mainLayout := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(feedView, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, true).
		AddItem(statusView, 3, 0, false)

	var connected bool
	var lastErr string
	var selectedID string
	var filterOn bool

	renderStatus := func(msg string) {
		snap := state.snapshot()
		conn := "[red]disconnected[-]"
		if connected {
			conn = "[green]connected[-]"
		}
		token := snap.Masked
		if token == "" {
			token = "not set"
		}
		line := fmt.Sprintf("%s %s | token %s | F10 quit, Ctrl+E chat id, Ctrl+D avatar, Ctrl+K token, Ctrl+F filter, Esc bots", conn, c.baseURL, token)
		if msg != "" {
			line += " | " + msg
		}
		statusView.SetText(line)
	}
	setStatusAsync := func(msg string) {
		app.QueueUpdateDraw(func() {
			renderStatus(msg)
		})
	}
	// renderFeed must run on the UI goroutine; it reads selectedID.
	renderFeed := func() {
		snap := state.snapshot()
		filterID := ""
		title := "Activity (all bots)"
		if filterOn && selectedID != "" {
			filterID = selectedID
			title = "Activity (" + selectedID + ")"
		}
		feedView.SetTitle(title)
		feedView.SetText(renderEvents(filterEvents(snap.Events, filterID), time.Now()))
	}

	personasTable.SetSelectionChangedFunc(func(row, _ int) {
		snap := state.snapshot()
		if row <= 0 || row > len(snap.Personas) {
			return
		}
		p := snap.Personas[row-1]
		selectedID = p.ID
		chatInput.SetLabel(fmt.Sprintf("Chat ID (%s): ", p.Name))
		chatInput.SetText(p.Config.ChatID)
		avatarInput.SetLabel(fmt.Sprintf("Avatar URL (%s): ", p.Name))
		avatarInput.SetText(p.Config.AvatarURL)
		if filterOn {
			renderFeed()
		}
	})

	personasTable.SetSelectedFunc(func(row, _ int) {
		snap := state.snapshot()
		if row <= 0 || row > len(snap.Personas) {
			return
		}
		p := snap.Personas[row-1]
		renderStatus("Sending test message for " + p.Name + "...")
		go func(id, name string) {
			if err := c.testDelivery(id); err != nil {
				setStatusAsync("Test failed for " + name + ": " + err.Error())
				return
			}
			setStatusAsync("Test message sent for " + name)
		}(p.ID, p.Name)
	})

	chatInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		if selectedID == "" {
			renderStatus("Select a bot first")
			return
		}
		id, chatID := selectedID, strings.TrimSpace(chatInput.GetText())
		renderStatus("Saving chat id for " + id + "...")
		app.SetFocus(personasTable)
		runAsync(func() error { return c.setChatID(id, chatID) }, setStatusAsync,
			"Chat ID saved for "+id, "Save failed: ")
	})

	avatarInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		if selectedID == "" {
			renderStatus("Select a bot first")
			return
		}
		id, avatarURL := selectedID, strings.TrimSpace(avatarInput.GetText())
		renderStatus("Saving avatar url for " + id + "...")
		app.SetFocus(personasTable)
		runAsync(func() error { return c.setAvatarURL(id, avatarURL) }, setStatusAsync,
			"Avatar URL saved for "+id, "Save failed: ")
	})

	tokenInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		token := strings.TrimSpace(tokenInput.GetText())
		tokenInput.SetText("")
		app.SetFocus(personasTable)
		runAsync(func() error { return c.setToken(token) }, setStatusAsync,
			"", "Token update failed: ")
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyEscape:
			app.SetFocus(personasTable)
			return nil
		case tcell.KeyCtrlE:
			app.SetFocus(chatInput)
			return nil
		case tcell.KeyCtrlD:
			app.SetFocus(avatarInput)
			return nil
		case tcell.KeyCtrlK:
			app.SetFocus(tokenInput)
			return nil
		case tcell.KeyCtrlF:
			filterOn = !filterOn
			renderFeed()
			return nil
		case tcell.KeyF5:
			go func() {
				stats, err := c.stats()
				if err != nil {
					setStatusAsync("Stats failed: " + err.Error())
					return
				}
				setStatusAsync(fmt.Sprintf("%d messages, %d in 24h, %d subscribers, up %s",
					stats.TotalMessages, stats.Last24h, stats.Subscribers,
					time.Duration(stats.UptimeSeconds*float64(time.Second)).Round(time.Second)))
			}()
			return nil
		}
		return event
	})

	go c.stream(ctx, *retry,
		func(fr frame) {
			if err := state.apply(fr); err != nil {
				setStatusAsync(err.Error())
				return
			}
			app.QueueUpdateDraw(func() {
				snap := state.snapshot()
				// Rebuilding the table resets the chat id input, so only do
				// it when bots or their config changed.
				if fr.Type != domain.MessageTypeNewActivity {
					renderPersonasTable(personasTable, snap.Personas, selectedID)
				}
				renderFeed()
				renderStatus(lastErr)
			})
		},
		func(ok bool, err error) {
			app.QueueUpdateDraw(func() {
				connected = ok
				lastErr = ""
				if err != nil {
					lastErr = fmt.Sprintf("reconnecting in %s: %v", *retry, err)
				}
				renderStatus(lastErr)
			})
		},
	)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				app.Stop()
				return
			case <-ticker.C:
				app.QueueUpdateDraw(renderFeed)
			}
		}
	}()

	renderStatus("connecting...")
	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(personasTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func renderPersonasTable(table *tview.Table, personas []domain.PersonaView, selectedID string) {
	table.Clear()
	headers := []string{"", "Bot", "Role", "Status", "Chat ID", "Avatar"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, p := range personas {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(p.Icon))
		table.SetCell(row, 1, tview.NewTableCell(p.Name))
		table.SetCell(row, 2, tview.NewTableCell(p.Role))
		table.SetCell(row, 3, tview.NewTableCell(string(p.Status)))
		table.SetCell(row, 4, tview.NewTableCell(chatIDLabel(p.Config)))
		table.SetCell(row, 5, tview.NewTableCell(avatarLabel(p.Config)).SetMaxWidth(32))
		if p.ID == selectedID {
			table.Select(row, 0)
		}
	}
}

func waitHealth(c *client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/healthz", nil)
		if err == nil {
			resp, err := c.http.Do(req)
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode < 300 {
					return nil
				}
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for /healthz")
}

func startEmbeddedOffice(addr string, officeBinary string, dbPath string) (*embeddedOffice, error) {
	parsed, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	port := parsed.Port()
	if port == "" {
		return nil, fmt.Errorf("addr must include explicit port, got %q", addr)
	}
	args := []string{"serve", "--addr", ":" + port, "--db", dbPath}

	var cmd *exec.Cmd
	if strings.TrimSpace(officeBinary) != "" {
		cmd = exec.Command(officeBinary, args...)
	} else {
		self, err := os.Executable()
		if err == nil {
			sibling := filepath.Join(filepath.Dir(self), "office")
			if fileExists(sibling) {
				cmd = exec.Command(sibling, args...)
			}
		}
		if cmd == nil {
			cmd = exec.Command("go", append([]string{"run", "./cmd/office"}, args...)...)
			cwd, _ := os.Getwd()
			cmd.Dir = cwd
		}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start office process: %w", err)
	}
	return &embeddedOffice{cmd: cmd}, nil
}

func (e *embeddedOffice) Stop() {
	if e == nil || e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Kill()
	_, _ = e.cmd.Process.Wait()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
