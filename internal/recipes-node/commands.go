package recipesnode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/catalog"
	"recipe-swap/internal/proto"
	"recipe-swap/internal/uiutil"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errUsage          = errors.New("usage")
)

type cmdKind int

const (
	cmdListPeers cmdKind = iota + 1
	cmdListKnown
	cmdListAll
	cmdListOne
	cmdListLocal
	cmdCreate
	cmdPublish
	cmdHelp
)

type command struct {
	kind cmdKind

	peer         peer.ID
	name         string
	ingredients  string
	instructions string
	id           uint64
}

// parseCommand classifies one REPL line.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "help":
		return command{kind: cmdHelp}, nil
	case line == "ls p":
		return command{kind: cmdListPeers}, nil
	case line == "ls p known":
		return command{kind: cmdListKnown}, nil
	case line == "ls r all":
		return command{kind: cmdListAll}, nil
	case line == "ls r local":
		return command{kind: cmdListLocal}, nil

	case strings.HasPrefix(line, "ls r one"):
		arg := strings.TrimSpace(strings.TrimPrefix(line, "ls r one"))
		if arg == "" || strings.ContainsAny(arg, " \t") {
			return command{}, fmt.Errorf("%w: ls r one <peer>", errUsage)
		}
		id, err := peer.Decode(arg)
		if err != nil {
			return command{}, fmt.Errorf("%w: ls r one <peer> (invalid peer id %q)", errUsage, arg)
		}
		return command{kind: cmdListOne, peer: id}, nil

	case strings.HasPrefix(line, "create r"):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "create r"))
		parts := strings.SplitN(rest, "|", 3)
		if len(parts) != 3 || strings.TrimSpace(parts[0]) == "" {
			return command{}, fmt.Errorf("%w: create r <name>|<ingredients>|<instructions>", errUsage)
		}
		return command{
			kind:         cmdCreate,
			name:         strings.TrimSpace(parts[0]),
			ingredients:  strings.TrimSpace(parts[1]),
			instructions: strings.TrimSpace(parts[2]),
		}, nil

	case strings.HasPrefix(line, "publish r"):
		arg := strings.TrimSpace(strings.TrimPrefix(line, "publish r"))
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return command{}, fmt.Errorf("%w: publish r <id>", errUsage)
		}
		return command{kind: cmdPublish, id: id}, nil
	}
	return command{}, fmt.Errorf("%w: %q", errUnknownCommand, line)
}

func (a *App) handleLine(ctx context.Context, line string) {
	cmd, err := parseCommand(line)
	if err != nil {
		a.logger.Warn("ignoring input", "line", line, "err", err)
		a.ui.Println(err)
		if errors.Is(err, errUnknownCommand) {
			PrintCommands(a.ui)
		}
		return
	}

	switch cmd.kind {
	case cmdHelp:
		PrintCommands(a.ui)

	case cmdListPeers:
		peers := a.view.list()
		if len(peers) == 0 {
			a.ui.Println("no peers discovered")
			return
		}
		a.ui.Println("Discovered peers:")
		for _, id := range peers {
			a.ui.Printf("  %s  %s\n", uiutil.PeerLabel(id.String()), id)
		}

	case cmdListKnown:
		a.listKnown()

	case cmdListAll:
		a.publishRequest(proto.AllMode())

	case cmdListOne:
		a.publishRequest(proto.OneMode(cmd.peer.String()))

	case cmdListLocal:
		all, err := a.store.ListLocal(ctx)
		if err != nil {
			a.logger.Error("read catalog", "err", err)
			a.ui.Printf("could not read catalog: %v\n", err)
			return
		}
		if len(all) == 0 {
			a.ui.Println("catalog is empty")
			return
		}
		a.ui.Printf("Local recipes (%d):\n", len(all))
		for _, r := range all {
			printRecipe(a.ui, r)
		}

	case cmdCreate:
		r, err := a.store.Create(ctx, cmd.name, cmd.ingredients, cmd.instructions)
		if err != nil {
			a.logger.Error("create recipe", "err", err)
			a.ui.Printf("could not create recipe: %v\n", err)
			return
		}
		a.metrics.CatalogSize.Add(1)
		a.ui.Printf("created recipe #%d %q\n", r.ID, r.Name)

	case cmdPublish:
		r, err := a.store.Find(ctx, cmd.id)
		if errors.Is(err, catalog.ErrNotFound) {
			a.ui.Printf("no recipe with id %d\n", cmd.id)
			return
		}
		if err != nil {
			a.logger.Error("find recipe", "id", cmd.id, "err", err)
			a.ui.Printf("could not read catalog: %v\n", err)
			return
		}
		if r.Public {
			a.ui.Printf("recipe #%d %q is already public\n", r.ID, r.Name)
			return
		}
		r, err = a.store.Publish(ctx, cmd.id)
		if err != nil {
			a.logger.Error("publish recipe", "id", cmd.id, "err", err)
			a.ui.Printf("could not publish recipe: %v\n", err)
			return
		}
		a.ui.Printf("recipe #%d %q is now public\n", r.ID, r.Name)
	}
}

func (a *App) listKnown() {
	if a.book == nil {
		a.ui.Println("peer book disabled")
		return
	}
	recs, err := a.book.Recent(50)
	if err != nil {
		a.logger.Error("read peer book", "err", err)
		a.ui.Printf("could not read peer book: %v\n", err)
		return
	}
	if len(recs) == 0 {
		a.ui.Println("peer book is empty")
		return
	}
	if total, err := a.book.Count(); err == nil && total > len(recs) {
		a.ui.Printf("%d peers remembered, showing the %d most recent\n", total, len(recs))
	}
	a.ui.Printf("%-10s  %-19s  %-6s  %s\n", "PEER", "LAST SEEN", "SEEN", "STATE")
	for _, r := range recs {
		state := "expired"
		if id, err := peer.Decode(r.ID); err == nil && a.view.has(id) {
			state = "online"
		} else if r.LastExpired.Before(r.LastSeen) {
			state = "seen"
		}
		a.ui.Printf("%-10s  %-19s  %-6d  %s\n",
			uiutil.ShortID(r.ID), r.LastSeen.Local().Format("2006-01-02 15:04:05"), r.TimesSeen, state)
	}
}

func (a *App) publishRequest(mode proto.ListMode) {
	data, err := proto.ListRequest{Mode: mode}.Encode()
	if err != nil {
		a.logger.Error("encode request", "err", err)
		return
	}
	if err := a.bus.Publish(a.cfg.Topic, data); err != nil {
		a.logger.Warn("publish request", "mode", mode.String(), "err", err)
		a.ui.Printf("could not send request: %v\n", err)
		return
	}
	a.metrics.Published.With("kind", "request").Add(1)
	a.logger.Debug("request published", "mode", mode.String())
	a.ui.Printf("asked %s for recipes\n", describeMode(mode))
}

func describeMode(m proto.ListMode) string {
	if m.IsAll() {
		return "all peers"
	}
	return "peer " + uiutil.ShortID(m.Peer)
}
