// Command ui is a desktop client for taskdesk members: sign in, see your
// dashboard and tick off assigned work.
package main

import (
	"fmt"
	"image/color"
	"os"
	"sync"
	"time"

	"gioui.org/app"
	"gioui.org/font"
	"gioui.org/font/gofont"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	log "github.com/sirupsen/logrus"
)

var theme *material.Theme

const pollInterval = 5 * time.Second

const (
	pageDashboard = iota
	pageTasks
)

type UI struct {
	api    *client
	window *app.Window

	currentPage int

	// Login
	handleEditor widget.Editor
	secretEditor widget.Editor
	loginBtn     widget.Clickable

	// Nav
	navDashboard widget.Clickable
	navTasks     widget.Clickable
	logoutBtn    widget.Clickable
	refreshBtn   widget.Clickable

	// Tasks
	taskList    widget.List
	completeBtn []widget.Clickable

	mu        sync.Mutex
	dash      Dashboard
	tasks     []TaskView
	lastError string
}

func main() {
	base := "http://localhost:8080"
	if v := os.Getenv("API_BASE"); v != "" {
		base = v
	}

	theme = material.NewTheme()
	theme.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	theme.Palette.Bg = color.NRGBA{R: 0x12, G: 0x12, B: 0x12, A: 0xFF}
	theme.Palette.Fg = color.NRGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
	theme.Palette.ContrastBg = color.NRGBA{R: 0x30, G: 0x60, B: 0xA0, A: 0xFF}
	theme.Palette.ContrastFg = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

	ui := &UI{api: newClient(base)}
	ui.taskList.Axis = layout.Vertical
	ui.handleEditor.SingleLine = true
	ui.secretEditor.SingleLine = true
	ui.secretEditor.Mask = '*'
	ui.secretEditor.Submit = true

	go func() {
		w := new(app.Window)
		w.Option(app.Title("taskdesk"))
		w.Option(app.Size(unit.Dp(960), unit.Dp(680)))
		ui.window = w
		go ui.pollData()
		if err := ui.run(w); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}()
	app.Main()
}

func (ui *UI) run(w *app.Window) error {
	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			ui.handleClicks(gtx)
			ui.layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

func (ui *UI) handleClicks(gtx layout.Context) {
	if !ui.api.signedIn() {
		submitted := false
		for {
			ev, ok := ui.secretEditor.Update(gtx)
			if !ok {
				break
			}
			if _, ok := ev.(widget.SubmitEvent); ok {
				submitted = true
			}
		}
		if ui.loginBtn.Clicked(gtx) || submitted {
			handle, secret := ui.handleEditor.Text(), ui.secretEditor.Text()
			ui.secretEditor.SetText("")
			go ui.login(handle, secret)
		}
		return
	}

	if ui.navDashboard.Clicked(gtx) {
		ui.currentPage = pageDashboard
	}
	if ui.navTasks.Clicked(gtx) {
		ui.currentPage = pageTasks
	}
	if ui.refreshBtn.Clicked(gtx) {
		go ui.fetchAll()
	}
	if ui.logoutBtn.Clicked(gtx) {
		ui.api.logout()
		ui.mu.Lock()
		ui.dash, ui.tasks, ui.lastError = Dashboard{}, nil, ""
		ui.mu.Unlock()
	}

	ui.mu.Lock()
	tasks := ui.tasks
	ui.mu.Unlock()
	for i := range ui.completeBtn {
		if i < len(tasks) && ui.completeBtn[i].Clicked(gtx) {
			go ui.complete(tasks[i].ID)
		}
	}
}

func (ui *UI) layout(gtx layout.Context) layout.Dimensions {
	if !ui.api.signedIn() {
		return ui.layoutLogin(gtx)
	}
	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
		layout.Rigid(ui.layoutNav),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				if ui.currentPage == pageTasks {
					return ui.layoutTasks(gtx)
				}
				return ui.layoutDashboard(gtx)
			})
		}),
	)
}

func (ui *UI) layoutLogin(gtx layout.Context) layout.Dimensions {
	return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		gtx.Constraints.Max.X = gtx.Dp(unit.Dp(320))
		gtx.Constraints.Min.X = gtx.Constraints.Max.X
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(material.H5(theme, "Sign in").Layout),
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Rigid(material.Editor(theme, &ui.handleEditor, "Handle").Layout),
			layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
			layout.Rigid(material.Editor(theme, &ui.secretEditor, "Secret").Layout),
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Rigid(material.Button(theme, &ui.loginBtn, "Sign in").Layout),
			layout.Rigid(ui.layoutError),
		)
	})
}

func (ui *UI) layoutError(gtx layout.Context) layout.Dimensions {
	ui.mu.Lock()
	msg := ui.lastError
	ui.mu.Unlock()
	if msg == "" {
		return layout.Dimensions{}
	}
	return layout.Inset{Top: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		label := material.Caption(theme, msg)
		label.Color = color.NRGBA{R: 0xFF, G: 0x60, B: 0x60, A: 0xFF}
		return label.Layout(gtx)
	})
}

func (ui *UI) layoutNav(gtx layout.Context) layout.Dimensions {
	gtx.Constraints.Min.X = gtx.Dp(unit.Dp(180))
	gtx.Constraints.Max.X = gtx.Dp(unit.Dp(180))
	name := ""
	if me := ui.api.member(); me != nil {
		name = me.Name
	}
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return layout.Inset{Top: unit.Dp(16), Bottom: unit.Dp(16), Left: unit.Dp(12)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
					layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						label := material.H6(theme, "taskdesk")
						label.Color = theme.Palette.ContrastFg
						return label.Layout(gtx)
					}),
					layout.Rigid(material.Caption(theme, name).Layout),
				)
			})
		}),
		layout.Rigid(navBtn(theme, &ui.navDashboard, "Dashboard", ui.currentPage == pageDashboard)),
		layout.Rigid(navBtn(theme, &ui.navTasks, "My tasks", ui.currentPage == pageTasks)),
		layout.Rigid(navBtn(theme, &ui.logoutBtn, "Sign out", false)),
	)
}

func navBtn(th *material.Theme, btn *widget.Clickable, label string, active bool) layout.Widget {
	return func(gtx layout.Context) layout.Dimensions {
		return layout.Inset{Top: unit.Dp(2), Bottom: unit.Dp(2), Left: unit.Dp(8), Right: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			b := material.Button(th, btn, label)
			if active {
				b.Background = th.Palette.ContrastBg
			} else {
				b.Background = color.NRGBA{A: 0}
			}
			b.Color = th.Palette.Fg
			return b.Layout(gtx)
		})
	}
}

func (ui *UI) layoutDashboard(gtx layout.Context) layout.Dimensions {
	ui.mu.Lock()
	d := ui.dash
	ui.mu.Unlock()

	line := func(s string) layout.FlexChild {
		return layout.Rigid(material.Body1(theme, s).Layout)
	}
	children := []layout.FlexChild{
		layout.Rigid(material.H5(theme, "Dashboard").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
		line(fmt.Sprintf("Total: %d", d.Total)),
		line(fmt.Sprintf("Pending: %d   In progress: %d   Completed: %d",
			d.Distribution.Pending, d.Distribution.InProgress, d.Distribution.Completed)),
		line(fmt.Sprintf("Low: %d   Moderate: %d   High: %d",
			d.Distribution.Low, d.Distribution.Moderate, d.Distribution.High)),
		layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
		layout.Rigid(material.H6(theme, "Recent").Layout),
	}
	for _, t := range d.Recent {
		children = append(children, layout.Rigid(taskRow(t)))
	}
	children = append(children,
		layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
		layout.Rigid(material.Button(theme, &ui.refreshBtn, "Refresh").Layout),
		layout.Rigid(ui.layoutError),
	)
	return layout.Flex{Axis: layout.Vertical, Spacing: layout.SpaceEnd}.Layout(gtx, children...)
}

func (ui *UI) layoutTasks(gtx layout.Context) layout.Dimensions {
	ui.mu.Lock()
	tasks := ui.tasks
	ui.mu.Unlock()
	for len(ui.completeBtn) < len(tasks) {
		ui.completeBtn = append(ui.completeBtn, widget.Clickable{})
	}

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(material.H5(theme, "My tasks").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return material.List(theme, &ui.taskList).Layout(gtx, len(tasks), func(gtx layout.Context, i int) layout.Dimensions {
				t := tasks[i]
				return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
					layout.Flexed(1, taskRow(t)),
					layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						if t.Status == "Completed" {
							return layout.Dimensions{}
						}
						return material.Button(theme, &ui.completeBtn[i], "Complete").Layout(gtx)
					}),
				)
			})
		}),
		layout.Rigid(ui.layoutError),
	)
}

func taskRow(t TaskView) layout.Widget {
	statusColor := color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	switch t.Status {
	case "Pending":
		statusColor = color.NRGBA{R: 0xFF, G: 0xA0, B: 0x00, A: 0xFF}
	case "In Progress":
		statusColor = color.NRGBA{R: 0x00, G: 0xA0, B: 0xFF, A: 0xFF}
	case "Completed":
		statusColor = color.NRGBA{R: 0x00, G: 0xC0, B: 0x00, A: 0xFF}
	}
	detail := fmt.Sprintf("[%s] %s  %d%%  %d/%d done", t.Status, t.Priority, t.Progress, t.CompletedCount, len(t.Checklist))
	if t.DueDate != nil {
		detail += "  due " + t.DueDate.Format("2006-01-02")
	}
	return func(gtx layout.Context) layout.Dimensions {
		return layout.Inset{Bottom: unit.Dp(6)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					label := material.Body2(theme, t.Title)
					label.Font.Weight = font.Bold
					return label.Layout(gtx)
				}),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					label := material.Caption(theme, detail)
					label.Color = statusColor
					return label.Layout(gtx)
				}),
			)
		})
	}
}

// Data fetching

func (ui *UI) pollData() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if ui.api.signedIn() {
			ui.fetchAll()
		}
	}
}

func (ui *UI) fetchAll() {
	d, err := ui.api.dashboard()
	if err != nil {
		ui.fail("fetch dashboard", err)
		return
	}
	tasks, err := ui.api.myTasks()
	if err != nil {
		ui.fail("fetch tasks", err)
		return
	}
	ui.mu.Lock()
	ui.dash, ui.tasks, ui.lastError = *d, tasks, ""
	ui.mu.Unlock()
	ui.window.Invalidate()
}

func (ui *UI) login(handle, secret string) {
	if err := ui.api.login(handle, secret); err != nil {
		ui.fail("login", err)
		return
	}
	ui.fetchAll()
}

func (ui *UI) complete(id string) {
	if err := ui.api.complete(id); err != nil {
		ui.fail("complete task", err)
		return
	}
	ui.fetchAll()
}

func (ui *UI) fail(op string, err error) {
	log.WithField("operation", op).WithError(err).Warn("request failed")
	ui.mu.Lock()
	ui.lastError = fmt.Sprintf("%s: %v", op, err)
	ui.mu.Unlock()
	ui.window.Invalidate()
}
