package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/poller"
	"github.com/theleywin/workkie/src/session"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const WorkkieCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Workkie control.

Runs against the MongoDB named in the config file and environment, or
against a throwaway in-memory store with --memory.

Usage:
    workkiectl users [options]
    workkiectl signup <username> <email> <password> [options]
    workkiectl propose <username> <password> <to_username> [options]
    workkiectl pending <username> <password> [options]
    workkiectl resolve <username> <password> <request_id> <decision> [options]
    workkiectl sync <username> <password> <lat> <lon> [options]
    workkiectl poll <username> <password> [--decision=<decision>] [--count=<count>] [options]
    workkiectl posts [options]
    workkiectl comment <username> <password> <post_id> <content> [options]
    workkiectl seed [--count=<count>] [options]
    workkiectl demo [options]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --config=<path>            YAML config file [default: workkie.yaml].
    --memory                   Use an in-memory store.
    --decision=<decision>      accept, reject or ignore [default: ignore].
    --count=<count>            How many to process before exiting [default: 5].
    --verbosity=<level>        glog verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], WorkkieCtlVersion)
	if err != nil {
		panic(err)
	}
	if level, err := opts.String("--verbosity"); err == nil {
		flag.Set("v", level)
	}
	flag.Set("logtostderr", "true")
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := open(ctx, opts)
	if err != nil {
		Err.Fatalf("open store: %v", err)
	}
	defer a.Close(context.Background())

	switch {
	case flagSet(opts, "users"):
		err = users(ctx, a)
	case flagSet(opts, "signup"):
		err = signup(ctx, a, opts)
	case flagSet(opts, "propose"):
		err = propose(ctx, a, opts)
	case flagSet(opts, "pending"):
		err = pending(ctx, a, opts)
	case flagSet(opts, "resolve"):
		err = resolve(ctx, a, opts)
	case flagSet(opts, "sync"):
		err = syncLocation(ctx, a, opts)
	case flagSet(opts, "poll"):
		err = poll(ctx, a, opts)
	case flagSet(opts, "posts"):
		err = posts(ctx, a)
	case flagSet(opts, "comment"):
		err = comment(ctx, a, opts)
	case flagSet(opts, "seed"):
		err = seed(ctx, a, opts)
	case flagSet(opts, "demo"):
		err = demo(ctx, a)
	}
	if err != nil {
		Err.Fatal(err)
	}
}

func flagSet(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func open(ctx context.Context, opts docopt.Opts) (*app.App, error) {
	path, _ := opts.String("--config")
	cfg, err := lib.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	var s store.Store
	if flagSet(opts, "--memory") {
		s = store.NewMemoryStore()
	} else {
		s = store.NewMongoStore(lib.NewConnector(cfg))
	}
	a := app.New(cfg, s)
	if err := a.Init(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func login(ctx context.Context, a *app.App, opts docopt.Opts) (models.Identity, error) {
	username, _ := opts.String("<username>")
	password, _ := opts.String("<password>")
	return a.Authenticate(ctx, username, password)
}

func users(ctx context.Context, a *app.App) error {
	all, err := a.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range all {
		location := "-"
		if user.HasLocation() {
			location = fmt.Sprintf("%.5f,%.5f", *user.Latitude, *user.Longitude)
		}
		Out.Printf("%s\t%s\t%s\t%d connections\t%d pending", user.Id.Hex(), user.Username, location, len(user.Connections), len(user.PendingRequests()))
	}
	return nil
}

func signup(ctx context.Context, a *app.App, opts docopt.Opts) error {
	var in session.SignupInput
	in.Username, _ = opts.String("<username>")
	in.Email, _ = opts.String("<email>")
	in.Password, _ = opts.String("<password>")
	user, err := a.Signup(ctx, in)
	if err != nil {
		return err
	}
	Out.Printf("%s\t%s", user.Id.Hex(), user.Username)
	return nil
}

func propose(ctx context.Context, a *app.App, opts docopt.Opts) error {
	identity, err := login(ctx, a, opts)
	if err != nil {
		return err
	}
	toName, _ := opts.String("<to_username>")
	target, err := a.FindUser(ctx, toName)
	if err != nil {
		return err
	}
	req, err := a.Propose(ctx, identity, target.Id)
	Out.Println(app.ProposalMessage(req, err))
	if err == nil {
		Out.Printf("request %s", req.Id.Hex())
	}
	return nil
}

func pending(ctx context.Context, a *app.App, opts docopt.Opts) error {
	identity, err := login(ctx, a, opts)
	if err != nil {
		return err
	}
	reqs, err := a.ListPending(ctx, identity)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		Out.Printf("%s\tfrom %s\t%s", req.Id.Hex(), req.FromUsername, req.Date.Format(time.RFC3339))
	}
	return nil
}

func resolve(ctx context.Context, a *app.App, opts docopt.Opts) error {
	identity, err := login(ctx, a, opts)
	if err != nil {
		return err
	}
	rawID, _ := opts.String("<request_id>")
	requestID, err := primitive.ObjectIDFromHex(rawID)
	if err != nil {
		return fmt.Errorf("request id %q: %w", rawID, err)
	}
	rawDecision, _ := opts.String("<decision>")
	decision, err := models.ParseDecision(rawDecision)
	if err != nil {
		return err
	}
	res, err := a.Resolve(ctx, identity, requestID, decision)
	Out.Println(app.ResolutionMessage(decision, res.Request, err))
	return nil
}

func syncLocation(ctx context.Context, a *app.App, opts docopt.Opts) error {
	identity, err := login(ctx, a, opts)
	if err != nil {
		return err
	}
	lat, err := floatArg(opts, "<lat>")
	if err != nil {
		return err
	}
	lon, err := floatArg(opts, "<lon>")
	if err != nil {
		return err
	}
	if err := a.SyncCoordinates(ctx, identity, lat, lon); err != nil {
		return err
	}
	Out.Printf("%s at %.5f,%.5f", identity.Username, lat, lon)
	return nil
}

func floatArg(opts docopt.Opts, name string) (float64, error) {
	raw, _ := opts.String(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, raw, err)
	}
	return v, nil
}

// poll answers incoming requests with a fixed decision until count requests
// were handled or the process is interrupted.
func poll(ctx context.Context, a *app.App, opts docopt.Opts) error {
	identity, err := login(ctx, a, opts)
	if err != nil {
		return err
	}
	rawDecision, _ := opts.String("--decision")
	decision, err := models.ParseDecision(rawDecision)
	if err != nil {
		return err
	}
	count, err := opts.Int("--count")
	if err != nil {
		return err
	}

	handled := make(chan poller.Outcome, count)
	h := a.StartPolling(ctx, identity, func(ctx context.Context, req models.ConnectionRequest) (models.Decision, bool) {
		Out.Printf("request from %s (%s)", req.FromUsername, req.Id.Hex())
		return decision, true
	}, func(o poller.Outcome) {
		select {
		case handled <- o:
		default:
		}
	})
	defer a.StopPolling(h)

	for i := 0; i < count; i += 1 {
		select {
		case <-ctx.Done():
			return nil
		case o := <-handled:
			Out.Println(app.ResolutionMessage(o.Decision, o.Request, o.Err))
		}
	}
	return nil
}

func posts(ctx context.Context, a *app.App) error {
	all, err := a.Posts().GetAll(ctx)
	if err != nil {
		return err
	}
	for _, post := range all {
		Out.Printf("%s\t%s\t%s\t%d comments", post.Id.Hex(), post.Author, post.Title, len(post.Comments))
	}
	return nil
}

func comment(ctx context.Context, a *app.App, opts docopt.Opts) error {
	identity, err := login(ctx, a, opts)
	if err != nil {
		return err
	}
	rawID, _ := opts.String("<post_id>")
	postID, err := primitive.ObjectIDFromHex(rawID)
	if err != nil {
		return fmt.Errorf("post id %q: %w", rawID, err)
	}
	content, _ := opts.String("<content>")
	if err := a.Posts().AddComment(ctx, postID, identity.Username, content); err != nil {
		return err
	}
	Out.Println(models.FormatComment(identity.Username, content))
	return nil
}

// seed creates fake users with locations and a post each, printing their
// passwords so they can be used with the other commands.
func seed(ctx context.Context, a *app.App, opts docopt.Opts) error {
	count, err := opts.Int("--count")
	if err != nil {
		return err
	}
	for i := 0; i < count; i += 1 {
		password := gofakeit.Password(true, true, true, false, false, 12)
		user, err := a.Signup(ctx, session.SignupInput{
			Username:  fmt.Sprintf("%s%d", gofakeit.Username(), i),
			Email:     gofakeit.Email(),
			Password:  password,
			Avatar:    gofakeit.URL(),
			Education: gofakeit.JobTitle(),
			Degree:    gofakeit.JobDescriptor(),
		})
		if err != nil {
			return err
		}
		identity := models.Identity{UserID: user.Id, Username: user.Username}
		if err := a.SyncCoordinates(ctx, identity, gofakeit.Latitude(), gofakeit.Longitude()); err != nil {
			Err.Printf("sync %s: %v", user.Username, err)
		}
		post := &models.Post{Author: user.Username, Title: gofakeit.Sentence(4), Content: gofakeit.Paragraph(1, 2, 10, " ")}
		if err := a.Posts().Create(ctx, post); err != nil {
			return err
		}
		Out.Printf("%s\t%s\t%s", user.Id.Hex(), user.Username, password)
	}
	return nil
}

// demo walks two fresh users through a full request and accept.
func demo(ctx context.Context, a *app.App) error {
	suffix := gofakeit.LetterN(5)
	var ids [2]models.Identity
	for i, name := range []string{"alice", "bob"} {
		in := session.SignupInput{Username: name + suffix, Email: gofakeit.Email(), Password: "password-" + suffix}
		if _, err := a.Signup(ctx, in); err != nil {
			return err
		}
		identity, err := a.Authenticate(ctx, in.Username, in.Password)
		if err != nil {
			return err
		}
		ids[i] = identity
	}
	alice, bob := ids[0], ids[1]

	req, err := a.Propose(ctx, alice, bob.UserID)
	Out.Println(app.ProposalMessage(req, err))
	if err != nil {
		return err
	}
	res, err := a.Resolve(ctx, bob, req.Id, models.DecisionAccept)
	Out.Println(app.ResolutionMessage(models.DecisionAccept, res.Request, err))
	if err != nil {
		return err
	}
	_, err = a.Propose(ctx, alice, bob.UserID)
	Out.Println(app.ProposalMessage(models.ConnectionRequest{}, err))
	return nil
}
