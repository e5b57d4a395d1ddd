// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Slash commands.
//
// Interactive Commands:
//
//	/models                    List models grouped by category
//	/model [id]                Show or switch the model
//	/web [on|off]              Show or toggle web search
//	/roles                     List roles
//	/role <key> [prompt]       Switch role, or run a custom prompt
//	/role save <name> <prompt> Save a custom role
//	/role delete <key>         Delete a saved role
//	/mcp                       List MCP servers
//	/mcp add <id> <url>        Register an MCP server
//	/mcp connect <id>          Connect, also disconnect and delete
//	/save [title]              Save the conversation
//	/list                      List saved conversations
//	/load <file|n>             Load a saved conversation
//	/delete <file|n>           Delete a saved conversation
//	/clear                     Start a new conversation
//	/export [md|json] [dir]    Write the conversation to a local file
//	/image <prompt>            Generate an image in the background
//	/refresh                   Refetch models and roles
//	/reprobe                   Drop the connection and probe again
//	/status                    Show session state
//	/help, /quit

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/export"
	"github.com/jeranaias/agentdesk/internal/imagegen"
	"github.com/jeranaias/agentdesk/internal/mcp"
	"github.com/jeranaias/agentdesk/internal/role"
	"github.com/jeranaias/agentdesk/internal/util"
)

type command struct {
	name    string
	aliases []string
	usage   string
	summary string
	run     func(r *REPL, ctx context.Context, c CommandLine) error
	quit    bool
}

// commands is filled in init because /help reads it.
var commands []command

func init() {
	commands = []command{
		{name: "models", usage: "/models", summary: "List models grouped by category", run: (*REPL).cmdModels},
		{name: "model", usage: "/model [id]", summary: "Show or switch the model", run: (*REPL).cmdModel},
		{name: "web", usage: "/web [on|off]", summary: "Show or toggle web search", run: (*REPL).cmdWeb},
		{name: "roles", usage: "/roles", summary: "List roles", run: (*REPL).cmdRoles},
		{name: "role", usage: "/role <key> [prompt] | save <name> <prompt> | delete <key>", summary: "Switch, save or delete a role", run: (*REPL).cmdRole},
		{name: "mcp", usage: "/mcp [add <id> <url> | connect|disconnect|delete <id>]", summary: "Manage MCP servers", run: (*REPL).cmdMCP},
		{name: "save", usage: "/save [title]", summary: "Save the conversation", run: (*REPL).cmdSave},
		{name: "list", aliases: []string{"ls"}, usage: "/list", summary: "List saved conversations", run: (*REPL).cmdList},
		{name: "load", usage: "/load <file|n>", summary: "Load a saved conversation", run: (*REPL).cmdLoad},
		{name: "delete", usage: "/delete <file|n>", summary: "Delete a saved conversation", run: (*REPL).cmdDelete},
		{name: "clear", aliases: []string{"c", "new"}, usage: "/clear", summary: "Start a new conversation", run: (*REPL).cmdClear},
		{name: "export", usage: "/export [md|json] [dir]", summary: "Write the conversation to a local file", run: (*REPL).cmdExport},
		{name: "image", aliases: []string{"img"}, usage: "/image <prompt>", summary: "Generate an image in the background", run: (*REPL).cmdImage},
		{name: "refresh", usage: "/refresh", summary: "Refetch models and roles", run: (*REPL).cmdRefresh},
		{name: "reprobe", usage: "/reprobe", summary: "Drop the connection and probe again", run: (*REPL).cmdReprobe},
		{name: "status", aliases: []string{"s"}, usage: "/status", summary: "Show session state", run: (*REPL).cmdStatus},
		{name: "help", aliases: []string{"h", "?"}, usage: "/help", summary: "Show this list", run: (*REPL).cmdHelp},
		{name: "quit", aliases: []string{"q", "exit"}, usage: "/quit", summary: "Exit", quit: true},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
		for _, a := range c.aliases {
			if a == name {
				return c, true
			}
		}
	}
	return command{}, false
}

func (r *REPL) dispatch(ctx context.Context, c CommandLine) (bool, error) {
	cmd, ok := lookupCommand(c.Name)
	if !ok {
		return false, &UsageError{Field: "/" + c.Name, Reason: "unknown command"}
	}
	if cmd.quit {
		return true, nil
	}
	r.logger.Debug("command", zap.String("name", cmd.name), zap.Int("args", len(c.Args)))
	return false, cmd.run(r, ctx, c)
}

func (r *REPL) ok(format string, args ...any) {
	r.out.Println(SuccessStyle.Render("[OK]") + " " + fmt.Sprintf(format, args...))
}

// =============================================================================
// MODELS
// =============================================================================

func (r *REPL) cmdModels(ctx context.Context, c CommandLine) error {
	groups := r.app.Models.ByCategory()
	if len(groups) == 0 {
		return backend.ErrUnbound
	}
	sel := r.app.Models.Selection()

	r.out.Println(TitleStyle.Render("Models"))
	for _, g := range groups {
		r.out.Println(SectionStyle.Render(g.Category))
		for _, d := range g.Models {
			marker := "  "
			id := util.PadWidth(d.ID, 28)
			if d.ID == sel.Model {
				marker = HighlightStyle.Render("* ")
				id = HighlightStyle.Render(id)
			}
			var tags []string
			if d.Recommended {
				tags = append(tags, "recommended")
			}
			if d.SupportsWebSearch {
				tags = append(tags, "web")
			}
			if d.ContextLength > 0 {
				tags = append(tags, fmt.Sprintf("%dk ctx", d.ContextLength/1024))
			}
			line := marker + id + " " + d.Label
			if len(tags) > 0 {
				line += " " + DimStyle.Render("("+strings.Join(tags, ", ")+")")
			}
			r.out.Println(line)
			if d.Description != "" {
				r.out.Println("    " + DimStyle.Render(util.TruncateWidth(d.Description, r.width-4)))
			}
		}
	}
	return nil
}

func (r *REPL) cmdModel(ctx context.Context, c CommandLine) error {
	id := c.Arg(0)
	if id == "" {
		sel := r.app.Models.Selection()
		if sel.Model == "" {
			return backend.ErrUnbound
		}
		r.out.Printf("%s %s\n", RenderLabel("Model"), ValueStyle.Render(sel.Model))
		return nil
	}
	sel, err := r.app.Models.Select(id)
	if err != nil {
		return err
	}
	r.ok("Model set to %s", sel.Model)
	return nil
}

func (r *REPL) cmdWeb(ctx context.Context, c CommandLine) error {
	var on bool
	switch strings.ToLower(c.Arg(0)) {
	case "":
		state := "off"
		if r.app.Models.Selection().WebSearch {
			state = "on"
		}
		r.out.Printf("%s %s\n", RenderLabel("Web search"), ValueStyle.Render(state))
		return nil
	case "on", "true", "1":
		on = true
	case "off", "false", "0":
		on = false
	default:
		return &UsageError{Field: "/web", Value: c.Arg(0), Reason: "expected on or off"}
	}
	sel, err := r.app.Models.SetWebSearch(on)
	if err != nil {
		return err
	}
	if sel.WebSearch {
		r.ok("Web search on")
	} else {
		r.ok("Web search off")
	}
	return nil
}

// =============================================================================
// ROLES
// =============================================================================

func (r *REPL) cmdRoles(ctx context.Context, c CommandLine) error {
	roles, err := r.app.Roles.List(ctx)
	if err != nil {
		return err
	}
	r.printRoles(roles)
	return nil
}

func (r *REPL) printRoles(roles role.RoleSet) {
	active, chosen := r.app.Roles.Active()
	r.out.Println(TitleStyle.Render("Roles"))
	for _, key := range roles.Keys() {
		marker := "  "
		name := util.PadWidth(key, 16)
		if chosen && key == active.Key {
			marker = HighlightStyle.Render("* ")
			name = HighlightStyle.Render(name)
		}
		label := util.TruncateWidth(roles[key], r.width-20)
		if !role.IsBuiltin(key) {
			label += " " + DimStyle.Render("(saved)")
		}
		r.out.Println(marker + name + " " + label)
	}
	if chosen && active.Key == role.KeyCustom {
		r.out.Println(HighlightStyle.Render("* ") + util.PadWidth(role.KeyCustom, 16) + " " +
			DimStyle.Render(util.TruncateWidth(active.SystemContent, r.width-20)))
	}
}

func (r *REPL) cmdRole(ctx context.Context, c CommandLine) error {
	switch c.Arg(0) {
	case "":
		return usage("role", "/role <key> [custom prompt]")
	case "save":
		name, prompt := c.Arg(1), c.Rest(2)
		if name == "" || prompt == "" {
			return usage("role save", "/role save <name> <prompt>")
		}
		roles, err := r.app.Roles.SaveCustom(ctx, name, prompt)
		if err != nil {
			return err
		}
		r.ok("Saved role %s", name)
		r.printRoles(roles)
		return nil
	case "delete", "rm":
		key := c.Arg(1)
		if key == "" {
			return usage("role delete", "/role delete <key>")
		}
		if _, err := r.app.Roles.Delete(ctx, key); err != nil {
			return err
		}
		r.ok("Deleted role %s", key)
		return nil
	}

	active, err := r.app.Roles.Select(ctx, c.Arg(0), c.Rest(1))
	if err != nil {
		return err
	}
	r.ok("Role set to %s", active.Key)
	return nil
}

// =============================================================================
// MCP
// =============================================================================

func (r *REPL) cmdMCP(ctx context.Context, c CommandLine) error {
	id := c.Arg(1)
	switch sub := strings.ToLower(c.Arg(0)); sub {
	case "", "list", "ls":
		servers, err := r.app.MCP.Servers(ctx)
		if err != nil {
			return err
		}
		r.printServers(servers)
		return nil
	case "refresh":
		servers, err := r.app.MCP.Refresh(ctx)
		if err != nil {
			return err
		}
		r.printServers(servers)
		return nil
	case "add":
		url := c.Arg(2)
		if id == "" || url == "" {
			return usage("mcp add", "/mcp add <id> <url>")
		}
		if err := r.app.MCP.Add(ctx, id, mcp.ServerConfig{URL: url}); err != nil {
			return err
		}
		r.ok("Added MCP server %s", id)
		return nil
	case "connect", "disconnect", "delete", "rm":
		if id == "" {
			return usage("mcp "+sub, "/mcp "+sub+" <id>")
		}
		var err error
		switch sub {
		case "connect":
			err = r.app.MCP.Connect(ctx, id)
		case "disconnect":
			err = r.app.MCP.Disconnect(ctx, id)
		default:
			err = r.app.MCP.Delete(ctx, id)
		}
		if err != nil {
			return err
		}
		if srv, ok := r.app.MCP.Get(id); ok {
			r.ok("%s %s", id, srv.Status)
		} else {
			r.ok("Deleted MCP server %s", id)
		}
		return nil
	default:
		return &UsageError{Field: "/mcp", Value: sub, Reason: "unknown subcommand", Example: "/mcp [add|connect|disconnect|delete]"}
	}
}

func (r *REPL) printServers(servers []mcp.Server) {
	r.out.Println(TitleStyle.Render("MCP servers"))
	if len(servers) == 0 {
		r.out.Println(DimStyle.Render("  none. Add one with /mcp add <id> <url>"))
		return
	}
	for _, s := range servers {
		r.out.Printf("  %s %s %s\n",
			util.PadWidth(s.ID, 20),
			RenderStatus(s.Status.String()),
			DimStyle.Render(s.Config.URL))
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func (r *REPL) cmdSave(ctx context.Context, c CommandLine) error {
	path, err := r.app.Conversation.Save(ctx, c.Rest(0))
	if err != nil {
		return err
	}
	r.ok("Saved to %s", path)
	return nil
}

func (r *REPL) cmdList(ctx context.Context, c CommandLine) error {
	summaries, err := r.app.Conversation.List(ctx)
	if err != nil {
		return err
	}
	r.out.Println(TitleStyle.Render("Saved conversations"))
	if len(summaries) == 0 {
		r.out.Println(DimStyle.Render("  none"))
		return nil
	}
	for i, s := range summaries {
		r.out.Printf("%3d. %s %s %s\n",
			i+1,
			util.PadWidth(util.TruncateWidth(s.Title, 30), 30),
			DimStyle.Render(s.Date),
			DimStyle.Render(s.Filename))
	}
	return nil
}

// resolveFilename accepts a filename or a 1-based index into the last list.
func (r *REPL) resolveFilename(arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg
	}
	summaries := r.app.Conversation.Summaries()
	if n < 1 || n > len(summaries) {
		return arg
	}
	return summaries[n-1].Filename
}

func (r *REPL) cmdLoad(ctx context.Context, c CommandLine) error {
	if c.Arg(0) == "" {
		return usage("load", "/load <file|n>")
	}
	filename := r.resolveFilename(c.Arg(0))
	transcript, err := r.app.Conversation.Load(ctx, filename)
	if err != nil {
		return err
	}
	r.ok("Loaded %s (%d messages)", filename, len(transcript))
	r.out.Println(RenderSeparator(min(r.width, 70)))
	for _, m := range transcript {
		r.printMessage(m)
	}
	return nil
}

func (r *REPL) cmdDelete(ctx context.Context, c CommandLine) error {
	if c.Arg(0) == "" {
		return usage("delete", "/delete <file|n>")
	}
	filename := r.resolveFilename(c.Arg(0))
	if err := r.app.Conversation.Delete(ctx, filename); err != nil {
		return err
	}
	r.ok("Deleted %s", filename)
	return nil
}

func (r *REPL) cmdClear(ctx context.Context, c CommandLine) error {
	if err := r.app.Conversation.Clear(ctx); err != nil {
		return err
	}
	r.ok("Conversation cleared")
	return nil
}

func (r *REPL) cmdExport(ctx context.Context, c CommandLine) error {
	opts := export.DefaultOptions()
	if dir := c.Arg(1); dir != "" {
		opts.OutputDir = dir
	}
	exporter, err := export.ForFormat(c.Arg(0), opts)
	if err != nil {
		return &UsageError{Field: "/export", Value: c.Arg(0), Reason: err.Error()}
	}

	transcript := r.app.Conversation.Transcript()
	if len(transcript) == 0 {
		return backend.NewError(backend.ErrTypeInvalidInput, "nothing to export")
	}
	title := "conversation"
	for _, m := range transcript {
		if m.Role == "user" {
			title = util.TruncateWidth(util.FirstLine(m.Content), 40)
			break
		}
	}
	active, _ := r.app.Roles.Active()

	path, err := export.ExportToFile(&export.Transcript{
		Title:    title,
		Model:    r.app.Models.Selection().Model,
		Role:     active.Key,
		Messages: transcript,
	}, exporter, opts)
	if err != nil {
		return err
	}
	r.ok("Exported to %s", path)
	return nil
}

// =============================================================================
// IMAGES
// =============================================================================

// cmdImage starts the request and returns. The outcome is printed when it
// arrives; a newer /image discards an older one.
func (r *REPL) cmdImage(ctx context.Context, c CommandLine) error {
	prompt := c.Rest(0)
	if prompt == "" {
		return usage("image", "/image <prompt>")
	}
	if !r.app.Client.Bound() {
		return backend.ErrUnbound
	}

	r.images.Add(1)
	go func() {
		defer r.images.Done()
		res, err := r.app.Images.Generate(r.bg, imagegen.Request{Prompt: prompt})
		switch {
		case errors.Is(err, imagegen.ErrSuperseded):
			return
		case err != nil:
			DisplayError(r.out, err)
			return
		}
		r.out.Printf("%s %s\n", SuccessStyle.Render("[Image]"), InfoStyle.Render(res.URL))
		if res.RevisedPrompt != "" && res.RevisedPrompt != res.Prompt {
			r.out.Println(DimStyle.Render(WrapText(res.RevisedPrompt, r.width)))
		}
	}()
	r.out.Println(DimStyle.Render("Generating image..."))
	return nil
}

// =============================================================================
// CONNECTION
// =============================================================================

func (r *REPL) cmdRefresh(ctx context.Context, c CommandLine) error {
	if _, err := r.app.Prober.RefreshCapabilities(ctx); err != nil {
		return err
	}
	r.ok("%d models, model %s", len(r.app.Models.Models()), r.app.Models.Selection().Model)
	return nil
}

func (r *REPL) cmdReprobe(ctx context.Context, c CommandLine) error {
	conn, err := r.app.Reconnect(ctx)
	if err != nil {
		return err
	}
	r.ok("Connected to %s", conn.Endpoint)
	return nil
}

func (r *REPL) cmdStatus(ctx context.Context, c CommandLine) error {
	st := r.app.Status()

	conn := ErrorStyle.Render("not connected") + " " + DimStyle.Render(string(st.Candidate))
	if st.Bound {
		conn = SuccessStyle.Render("connected") + " " + ValueStyle.Render(string(st.Endpoint))
	}
	roleText := DimStyle.Render("none chosen")
	if st.RoleChosen {
		roleText = ValueStyle.Render(st.Role.Key)
	}
	web := "off"
	if st.Selection.WebSearch {
		web = "on"
	}
	mcpText := DimStyle.Render("not loaded")
	if st.MCPLoaded {
		mcpText = ValueStyle.Render(fmt.Sprintf("%d servers", st.MCPServers))
	}
	image := "idle"
	if st.ImagePending {
		image = "pending"
	}

	rows := [][2]string{
		{"Backend", conn},
		{"Model", ValueStyle.Render(st.Selection.Model) + DimStyle.Render(fmt.Sprintf(" (%d available)", st.Models))},
		{"Web search", ValueStyle.Render(web)},
		{"Role", roleText},
		{"MCP", mcpText},
		{"Messages", ValueStyle.Render(strconv.Itoa(st.Transcript))},
		{"Image", ValueStyle.Render(image)},
	}
	r.out.Println(TitleStyle.Render("Status"))
	for _, row := range rows {
		r.out.Println(RenderLabel(row[0]) + " " + row[1])
	}
	return nil
}

func (r *REPL) cmdHelp(ctx context.Context, c CommandLine) error {
	r.out.Println(TitleStyle.Render("Commands"))
	for _, cmd := range commands {
		r.out.Printf("  %s %s\n", util.PadWidth(cmd.usage, 34), DimStyle.Render(cmd.summary))
	}
	r.out.Println(DimStyle.Render("Anything else is sent as a chat message. Ctrl+C cancels, Ctrl+D exits."))
	return nil
}
