package recipesnode

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/proto"
	"recipe-swap/internal/uiutil"
)

const (
	ansiDim   = uiutil.AnsiDim
	ansiReset = uiutil.AnsiReset
)

func PrintBanner(p Printer, id peer.ID, addrs []string) {
	p.Println()
	p.Println("Node started.")
	p.Printf("ID:             %s\n", id)
	for _, a := range addrs {
		p.Printf("Addr:           %s\n", a)
	}
	p.Println()
	PrintCommands(p)
	p.Println()
}

func PrintCommands(p Printer) {
	p.Println("Commands:")
	p.Println("    ls p                         - list discovered peers")
	p.Println("    ls p known                   - list peers remembered in the peer book")
	p.Println("    ls r all                     - ask every peer for its public recipes")
	p.Println("    ls r one <peer>              - ask one peer for its public recipes")
	p.Println("    ls r local                   - list the local catalog")
	p.Println("    create r <name>|<ingredients>|<instructions>")
	p.Println("                                 - add a private recipe")
	p.Println("    publish r <id>               - make a recipe public")
	p.Println("    help                         - show this list")
}

func printRecipe(p Printer, r proto.Recipe) {
	vis := "private"
	if r.Public {
		vis = "public"
	}
	p.Printf("  #%-4d %s %s(%s)%s\n", r.ID, r.Name, ansiDim, vis, ansiReset)
	p.Printf("        ingredients:  %s\n", r.Ingredients)
	p.Printf("        instructions: %s\n", r.Instructions)
}

func printRemoteRecipes(p Printer, from peer.ID, resp proto.ListResponse) {
	who := uiutil.PeerLabel(from.String())
	if len(resp.Data) == 0 {
		p.Printf("[RECIPES] %s has no public recipes\n", who)
		return
	}
	p.Printf("[RECIPES] %d from %s (%s):\n", len(resp.Data), who, resp.Mode)
	for _, r := range resp.Data {
		printRecipe(p, r)
	}
}
