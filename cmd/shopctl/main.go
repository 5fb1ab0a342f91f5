// shopctl drives the storefront's view logic against a live store from the
// terminal. Each command performs a single operation, making it composable
// for scripts.
//
// Commands:
//
//	shopctl feed [-pages N]
//	shopctl search [-query TEXT]
//	shopctl state -user ID
//	shopctl wishlist -user ID -id PRODUCT
//	shopctl cart -user ID -id EFFECTIVE_ID
//	shopctl push -platform android|ios -token TOKEN [-user ID] [-server URL]
//	shopctl token -user ID [-ttl 24h]
//
// Store credentials come from the same environment (or .env / CONFIG_FILE)
// the server reads.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/account"
	"storefront/internal/catalog"
	"storefront/internal/clientinfo"
	"storefront/internal/config"
	"storefront/internal/feed"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/push"
	"storefront/internal/search"
	"storefront/internal/session"
	"storefront/internal/woocommerce"
)

// appVersion is reported in the Storefront-Client header.
const appVersion = "1.0.0"

// installKey is where the CLI keeps its installation id in the state file.
const installKey = "install_id"

// Global flags (apply to all commands)
var (
	quiet   bool
	noColor bool
	verbose bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "feed":
		runFeed(args)
	case "search":
		runSearch(args)
	case "state":
		runState(args)
	case "wishlist":
		runWishlist(args)
	case "cart":
		runCart(args)
	case "push":
		runPush(args)
	case "token":
		runToken(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shopctl - storefront view tool

Usage:
  shopctl <command> [options]

Commands:
  feed      Page through the recommendation grid
  search    Search once (-query) or interactively from stdin
  state     Show a customer's wishlist and cart
  wishlist  Toggle a product on a customer's wishlist
  cart      Add a card's effective id to a customer's cart
  push      Register this device's push token
  token     Issue a session token for the server

Examples:
  shopctl feed -pages 2
  shopctl search -query lamp
  shopctl wishlist -user 42 -id 101
  shopctl cart -user 42 -id 21
  shopctl push -platform android -token fcm-abc -user 42

Run 'shopctl <command> -h' for command-specific options.
`)
}

// commonFlags registers the flags every command accepts.
func commonFlags(fs *flag.FlagSet) {
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output ids")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - log store requests")
}

func parse(fs *flag.FlagSet, usage string, args []string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shopctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// STORE WIRING
// =============================================================================

type storeEnv struct {
	cfg    *config.Config
	client *woocommerce.Client
	mapper *catalog.Mapper
	logger *slog.Logger
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadStore(ctx context.Context) *storeEnv {
	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("Loading config: %v", err)
	}
	logger := newLogger()

	client, err := woocommerce.New(woocommerce.Config{
		StoreURL:          cfg.Store.StoreURL,
		APIKey:            cfg.Store.APIKey,
		APISecret:         cfg.Store.APISecret,
		RequestsPerSecond: cfg.Store.RequestsPerSecond,
		Burst:             cfg.Store.Burst,
		PlainTLS:          cfg.Store.PlainTLS,
	})
	if err != nil {
		fatal("Creating store client: %v", err)
	}

	mapper := catalog.NewMapper(catalog.NewResolver(client, logger), catalog.MapperConfig{
		CurrencyMarkers:  cfg.Catalog.CurrencyMarkers,
		PlaceholderImage: cfg.Catalog.PlaceholderImage,
		Concurrency:      cfg.Catalog.Concurrency,
	})
	return &storeEnv{cfg: cfg, client: client, mapper: mapper, logger: logger}
}

// =============================================================================
// FEED COMMAND
// =============================================================================

func runFeed(args []string) {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	var pages int
	fs.IntVar(&pages, "pages", 1, "Number of pages to load")
	commonFlags(fs)
	parse(fs, "feed [-pages N]", args)

	ctx := context.Background()
	env := loadStore(ctx)

	f := feed.New(feed.NewPager(env.client, env.mapper, env.cfg.Catalog.PageSize), env.logger)
	if err := f.Load(ctx); err != nil {
		fatal("Loading feed: %v", err)
	}
	for i := 1; i < pages; i++ {
		more, err := f.LoadMore(ctx)
		if err != nil {
			printWarning("Loading page %d failed: %v", i+1, err)
			break
		}
		if !more {
			break
		}
	}

	view := f.Snapshot()
	for _, card := range view.Items {
		printCard(card)
	}
	printInfo("%d items, page %d, state %s", len(view.Items), view.Page, view.State)
}

// =============================================================================
// SEARCH COMMAND
// =============================================================================

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var query string
	fs.StringVar(&query, "query", "", "Run one search and exit")
	commonFlags(fs)
	parse(fs, "search [-query TEXT]", args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	env := loadStore(ctx)

	if query != "" {
		results, err := search.Search(ctx, env.client, query)
		if err != nil {
			fatal("Search failed: %v", err)
		}
		if len(results) == 0 {
			printWarning("%s", search.NoResultsMessage)
			return
		}
		for _, r := range results {
			printResult(r)
		}
		return
	}

	// Interactive: every line is the new input text; "select ID" picks a row.
	ctrl := search.New(ctx, env.client, search.Config{Debounce: env.cfg.SearchDebounce}, env.logger)
	defer ctrl.Close()
	ctrl.OnChange(printSearchView)

	printInfo("Type to search, 'select ID' to pick a result, Ctrl-D to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if id, ok := strings.CutPrefix(line, "select "); ok {
			if r, found := ctrl.Select(strings.TrimSpace(id)); found {
				printSuccess("Opening product %s (%s)", r.ID, r.Name)
			} else {
				printWarning("No result with id %s", id)
			}
			continue
		}
		ctrl.Input(line)
	}
}

func printSearchView(v search.View) {
	switch {
	case v.Loading:
		printInfo("searching %q...", v.Input)
	case !v.Dropdown:
		return
	case v.Message != "":
		printWarning("%s", v.Message)
	default:
		for _, r := range v.Results {
			printResult(r)
		}
	}
}

// =============================================================================
// ACCOUNT COMMANDS
// =============================================================================

func newMutators(env *storeEnv, userID int) *account.Mutators {
	board := notice.NewBoard(env.cfg.NoticeDuration, nil)
	board.OnChange(func(msg string) {
		if msg != "" {
			printInfo("notice: %s", msg)
		}
	})
	sync := account.NewSynchronizer(env.client, session.Static{UserID: userID}, env.logger)
	return account.NewMutators(env.client, sync, board, env.logger, account.MutatorsConfig{LoginURL: env.cfg.LoginURL})
}

func runState(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	var userID int
	fs.IntVar(&userID, "user", 0, "Customer ID (required)")
	commonFlags(fs)
	parse(fs, "state -user ID", args)
	if userID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	env := loadStore(ctx)
	state, err := newMutators(env, userID).Synchronizer().Sync(ctx)
	if err != nil {
		fatal("Fetching customer: %v", err)
	}
	printState(state)
}

func runWishlist(args []string) {
	runMutation("wishlist", args, (*account.Mutators).ToggleWishlist)
}

func runCart(args []string) {
	runMutation("cart", args, (*account.Mutators).AddToCart)
}

func runMutation(name string, args []string, run func(*account.Mutators, context.Context, string) (account.Result, error)) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var userID int
	var id string
	fs.IntVar(&userID, "user", 0, "Customer ID (0 = signed out)")
	fs.StringVar(&id, "id", "", "Product ID, or effective ID for cart (required)")
	commonFlags(fs)
	parse(fs, name+" -user ID -id ID", args)
	if id == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	env := loadStore(ctx)
	m := newMutators(env, userID)

	result, err := run(m, ctx, id)
	switch result.Outcome {
	case account.LoginRequired:
		printWarning("Sign in required: %s", result.LoginURL)
		os.Exit(2)
	case account.Failed:
		fatal("%s: %v", result.Message, err)
	case account.Unchanged:
		printInfo("Already present, nothing written")
	default:
		printSuccess("%s", result.Message)
	}
	if !quiet {
		printState(m.Synchronizer().Snapshot())
	}
}

// =============================================================================
// PUSH COMMAND
// =============================================================================

func runPush(args []string) {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	var platform, token, permission, serverURL, endpoint, statePath string
	var userID int
	fs.StringVar(&platform, "platform", "android", "Device platform: android or ios")
	fs.StringVar(&token, "token", "", "Push token reported by the device")
	fs.StringVar(&permission, "permission", "granted", "Notification permission: granted or denied")
	fs.IntVar(&userID, "user", 0, "Signed-in customer ID (0 = signed out)")
	fs.StringVar(&serverURL, "server", "", "Register through a storefront server instead of directly")
	fs.StringVar(&endpoint, "endpoint", "", "Registration endpoint (default from config)")
	fs.StringVar(&statePath, "state", defaultStatePath(), "File keeping the last registered token")
	commonFlags(fs)
	parse(fs, "push -platform P -token T [options]", args)

	ctx := context.Background()
	store := push.NewFileStore(statePath)
	install := installID(ctx, store)

	if serverURL != "" {
		outcome, err := pushViaServer(ctx, serverURL, install, platform, token, permission)
		if err != nil {
			fatal("Registering through server: %v", err)
		}
		report(outcome)
		return
	}

	projectID := ""
	if endpoint == "" {
		cfg, err := config.Load(ctx)
		if err != nil {
			fatal("Loading config (or pass -endpoint): %v", err)
		}
		endpoint, projectID = cfg.Push.Endpoint, cfg.Push.ProjectID
	}

	device := push.StaticDevice{
		OS:         clientinfo.NormalizePlatform(platform),
		Token:      token,
		Permission: push.Permission(permission),
	}
	registrar := push.NewRegistrar(device, store, session.Static{UserID: userID}, push.Config{
		Endpoint:  endpoint,
		ProjectID: projectID,
	}, newLogger())
	report(registrar.Sync(ctx))
}

func report(outcome push.Outcome) {
	switch outcome {
	case push.Registered:
		printSuccess("Token registered")
	case push.Unchanged:
		printInfo("Token unchanged, nothing sent")
	case push.Failed:
		printError("Registration failed (see log)")
		os.Exit(1)
	default:
		printWarning("Skipped: %s", outcome)
	}
}

// installID returns the persisted installation id, creating one on first use.
func installID(ctx context.Context, store push.Store) string {
	id, err := store.Load(ctx, installKey)
	if err != nil {
		fatal("Reading state: %v", err)
	}
	if id != "" {
		return id
	}
	id = uuid.NewString()
	if err := store.Save(ctx, installKey, id); err != nil {
		fatal("Writing state: %v", err)
	}
	return id
}

func pushViaServer(ctx context.Context, serverURL, install, platform, token, permission string) (push.Outcome, error) {
	header, err := clientinfo.Format(clientinfo.Info{Platform: platform, Version: appVersion, Install: install})
	if err != nil {
		return "", err
	}

	body, _ := json.Marshal(map[string]string{
		"device_token": token,
		"permission":   permission,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(serverURL, "/")+"/v1/devices/push-token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(clientinfo.Header, header)
	if bearer := os.Getenv("STOREFRONT_TOKEN"); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		Outcome push.Outcome `json:"outcome"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return out.Outcome, nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".shopctl.json"
	}
	return filepath.Join(dir, "shopctl", "state.json")
}

// =============================================================================
// TOKEN COMMAND
// =============================================================================

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	var userID int
	var ttl time.Duration
	fs.IntVar(&userID, "user", 0, "Customer ID (required)")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	commonFlags(fs)
	parse(fs, "token -user ID [-ttl 24h]", args)
	if userID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(context.Background())
	if err != nil {
		fatal("Loading config: %v", err)
	}
	if cfg.Store.JWTSecret == "" {
		fatal("%v", errors.New("no JWT secret configured (MERCHANT_JWT_SECRET)"))
	}

	token, err := session.NewVerifier(cfg.Store.JWTSecret, cfg.Store.JWTIssuer).Issue(userID, ttl)
	if err != nil {
		fatal("Signing token: %v", err)
	}
	fmt.Println(token)
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCard(c model.DisplayCard) {
	if quiet {
		fmt.Println(c.ID)
		return
	}
	line := fmt.Sprintf("%s%-8s%s %-40s %s%.2f%s", colorCyan, c.ID, colorReset, c.Title, colorGreen, c.Price, colorReset)
	if c.OriginalPrice != nil {
		line += fmt.Sprintf(" %s(was %.2f)%s", colorGray, *c.OriginalPrice, colorReset)
	}
	if c.Discount != nil {
		line += fmt.Sprintf(" %s-%d%%%s", colorYellow, *c.Discount, colorReset)
	}
	if c.EffectiveID != c.ID {
		line += fmt.Sprintf(" %s[variation %s]%s", colorGray, c.EffectiveID, colorReset)
	}
	fmt.Println(line)
}

func printResult(r search.Result) {
	if quiet {
		fmt.Println(r.ID)
		return
	}
	fmt.Printf("%s%-8s%s %-40s %s\n", colorCyan, r.ID, colorReset, r.Name, r.Price)
}

func printState(s model.CommerceState) {
	if quiet {
		return
	}
	fmt.Printf("%sWishlist:%s %s\n", colorBold, colorReset, strings.Join(s.Wishlist, ", "))
	ids := make([]string, 0, len(s.Cart))
	for _, e := range s.Cart {
		ids = append(ids, fmt.Sprintf("%s x%d", e.ID, e.Quantity))
	}
	fmt.Printf("%sCart:%s %s\n", colorBold, colorReset, strings.Join(ids, ", "))
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
