// Command ftpfs runs one filesystem operation against an FTP server through
// a session pool.
//
//	ftpfs --addr ftp.example.com:21 --user alice --password secret ls /pub
//	ftpfs put report.pdf docs/report.pdf
//	ftpfs rm -r old-builds
//
// Connection settings come from the configuration file and FTPFS_*
// environment variables; the global flags override both.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/gonzalop/ftpfs/config"
	"github.com/gonzalop/ftpfs/ftpafero"
)

type pathCmd struct {
	Path string `arg:"positional,required" help:"remote path"`
}

type lsCmd struct {
	Long bool   `arg:"-l" help:"long listing with mode, size and time"`
	Path string `arg:"positional" default:"/" help:"remote directory"`
}

type getCmd struct {
	Progress bool   `arg:"-P,--progress" help:"report progress on stderr"`
	Remote   string `arg:"positional,required" help:"remote file"`
	Local    string `arg:"positional" help:"local file (default: base name of remote)"`
}

type putCmd struct {
	Progress bool   `arg:"-P,--progress" help:"report progress on stderr"`
	Local    string `arg:"positional,required" help:"local file"`
	Remote   string `arg:"positional" help:"remote file (default: base name of local)"`
}

type rmCmd struct {
	Recursive bool   `arg:"-r" help:"remove directories and their contents"`
	Path      string `arg:"positional,required" help:"remote path"`
}

type mkdirCmd struct {
	Parents bool   `arg:"-p" help:"create missing parents, no error if it exists"`
	Path    string `arg:"positional,required" help:"remote directory"`
}

type mvCmd struct {
	From string `arg:"positional,required" help:"existing remote path"`
	To   string `arg:"positional,required" help:"new remote path"`
}

type args struct {
	Config   string `arg:"-c,--config" help:"configuration file (default: $XDG_CONFIG_HOME/ftpfs/config.yaml)"`
	Addr     string `arg:"--addr" help:"server host:port"`
	User     string `arg:"-u,--user" help:"login name"`
	Password string `arg:"--password" help:"login password (prefer FTPFS_SERVER_PASSWORD)"`
	Sessions int    `arg:"-n,--sessions" help:"maximum concurrent FTP sessions"`
	Debug    bool   `arg:"-d,--debug" help:"log every FTP command and reply"`

	Ls    *lsCmd    `arg:"subcommand:ls" help:"list a directory"`
	Cat   *pathCmd  `arg:"subcommand:cat" help:"write a remote file to stdout"`
	Get   *getCmd   `arg:"subcommand:get" help:"download a file"`
	Put   *putCmd   `arg:"subcommand:put" help:"upload a file"`
	Touch *pathCmd  `arg:"subcommand:touch" help:"create an empty file if missing"`
	Rm    *rmCmd    `arg:"subcommand:rm" help:"remove a file"`
	Mkdir *mkdirCmd `arg:"subcommand:mkdir" help:"create a directory"`
	Rmdir *pathCmd  `arg:"subcommand:rmdir" help:"remove an empty directory"`
	Mv    *mvCmd    `arg:"subcommand:mv" help:"rename a file or directory"`
	Stat  *pathCmd  `arg:"subcommand:stat" help:"show file information"`
}

func (args) Description() string {
	return "ftpfs runs filesystem operations on an FTP server.\n"
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses argv, executes one subcommand and returns the exit status.
func run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var a args
	p, err := arg.NewParser(arg.Config{Program: "ftpfs"}, &a)
	if err != nil {
		fmt.Fprintln(stderr, "ftpfs:", err)
		return 2
	}
	switch err := p.Parse(argv); {
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelp(stdout)
		return 0
	case err != nil:
		p.WriteUsage(stderr)
		fmt.Fprintln(stderr, "error:", err)
		return 2
	case p.Subcommand() == nil:
		p.WriteUsage(stderr)
		fmt.Fprintln(stderr, "error: missing command")
		return 2
	}

	cfg, err := loadConfig(&a)
	if err != nil {
		fmt.Fprintln(stderr, "ftpfs:", err)
		return 1
	}

	logger, closer, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(stderr, "ftpfs:", err)
		return 1
	}
	defer closer.Close()

	pool, err := cfg.NewPool(logger)
	if err != nil {
		fmt.Fprintln(stderr, "ftpfs:", err)
		return 1
	}

	c := &cli{
		fs:     ftpafero.New(pool).WithContext(ctx),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	err = c.dispatch(&a)
	if cerr := pool.Close(); err == nil && cerr != nil {
		logger.Warn("closing sessions", "error", cerr)
	}
	if err != nil {
		fmt.Fprintln(stderr, "ftpfs:", err)
		return 1
	}
	return 0
}

// loadConfig reads the configuration and applies the global flags on top.
func loadConfig(a *args) (*config.Config, error) {
	cfg, err := config.Load(a.Config)
	if err != nil {
		return nil, err
	}

	if a.Addr != "" {
		cfg.Server.Address = a.Addr
	}
	if a.User != "" {
		cfg.Server.User = a.User
	}
	if a.Password != "" {
		cfg.Server.Password = a.Password
	}
	if a.Sessions != 0 {
		cfg.Pool.MaxSessions = a.Sessions
	}
	if a.Debug {
		cfg.Logging.Level = "DEBUG"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
