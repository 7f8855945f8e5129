package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"

	"github.com/ixe-agent/articleapi/common/model"
)

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"list":       {"list one page of articles", cmdList},
	"all":        {"list every article page by page", cmdAll},
	"mine":       {"list your own articles", cmdMine},
	"get":        {"show one article with its comments", cmdGet},
	"create":     {"create an article", cmdCreate},
	"update":     {"update one of your articles", cmdUpdate},
	"delete":     {"delete one of your articles", cmdDelete},
	"categories": {"list article categories", cmdCategories},
	"comment":    {"comment on an article", cmdComment},
	"uncomment":  {"delete a comment", cmdUncomment},
	"like":       {"toggle a like on an article or comment", cmdLike},
	"logout":     {"forget the stored session", cmdLogout},
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: articlectl [--config path] <command> [flags]")
	fmt.Fprintln(out, "\ncommands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-11s %s\n", name, commands[name].summary)
	}
}

// parse runs a subcommand flag set, mapping parse failures to errUsage.
func parse(a *app, fs *flag.FlagSet, args []string) error {
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func listFlags(fs *flag.FlagSet, p *model.ListParams) {
	fs.IntVar(&p.Page, "page", 1, "page number")
	fs.IntVar(&p.Limit, "limit", 10, "page size")
	fs.Func("category", "category id", func(s string) error { p.CategoryID = model.ID(s); return nil })
	fs.StringVar(&p.Search, "search", "", "title search")
	fs.StringVar(&p.Sort, "sort", "", "sort order")
}

func cmdList(ctx context.Context, a *app, args []string) error {
	var p model.ListParams
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	listFlags(fs, &p)
	if err := parse(a, fs, args); err != nil {
		return err
	}

	page, err := a.service.ListArticles(ctx, p)
	if err != nil {
		return err
	}
	return a.print(page)
}

func cmdAll(ctx context.Context, a *app, args []string) error {
	var p model.ListParams
	fs := flag.NewFlagSet("all", flag.ContinueOnError)
	listFlags(fs, &p)
	maxPages := fs.Int("max-pages", 0, "stop after this many pages (0 = default)")
	if err := parse(a, fs, args); err != nil {
		return err
	}

	all, err := a.service.ListAllArticles(ctx, p, *maxPages)
	if err != nil {
		return err
	}
	return a.print(all)
}

func cmdMine(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("mine", flag.ContinueOnError)
	if err := parse(a, fs, args); err != nil {
		return err
	}

	mine, err := a.service.ListMyArticles(ctx)
	if err != nil {
		return err
	}
	return a.print(mine)
}

// idArg reads the single positional id of a command.
func idArg(a *app, name string, args []string) (model.ID, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if err := parse(a, fs, args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(a.stderr, "usage: articlectl %s <id>\n", name)
		return "", errUsage
	}
	return model.ID(fs.Arg(0)), nil
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	id, err := idArg(a, "get", args)
	if err != nil {
		return err
	}

	article, err := a.service.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	return a.print(article)
}

type articleFlags struct {
	in        model.ArticleInput
	coverPath string
}

func (f *articleFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.in.Title, "title", "", "article title")
	fs.StringVar(&f.in.Content, "content", "", "article body")
	fs.Func("category", "category id", func(s string) error { f.in.CategoryID = model.ID(s); return nil })
	fs.StringVar(&f.in.Status, "status", "", "publication status")
	fs.StringVar(&f.coverPath, "cover", "", "path to a cover image")
}

// input opens the cover file if one was given. The returned func closes it.
func (f *articleFlags) input() (model.ArticleInput, func(), error) {
	in := f.in
	if f.coverPath == "" {
		return in, func() {}, nil
	}

	file, err := os.Open(f.coverPath)
	if err != nil {
		return in, nil, fmt.Errorf("open cover: %w", err)
	}
	in.Cover = &model.Upload{
		Name:        filepath.Base(f.coverPath),
		ContentType: mime.TypeByExtension(filepath.Ext(f.coverPath)),
		Reader:      file,
	}
	return in, func() { _ = file.Close() }, nil
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	var f articleFlags
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	f.bind(fs)
	if err := parse(a, fs, args); err != nil {
		return err
	}

	in, done, err := f.input()
	if err != nil {
		return err
	}
	defer done()

	article, err := a.service.CreateArticle(ctx, in)
	if err != nil {
		return err
	}
	return a.print(article)
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	var f articleFlags
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	f.bind(fs)
	if err := parse(a, fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "usage: articlectl update [flags] <id>")
		return errUsage
	}

	in, done, err := f.input()
	if err != nil {
		return err
	}
	defer done()

	article, err := a.service.UpdateArticle(ctx, model.ID(fs.Arg(0)), in)
	if err != nil {
		return err
	}
	return a.print(article)
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	id, err := idArg(a, "delete", args)
	if err != nil {
		return err
	}
	if err := a.service.DeleteArticle(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted article %s\n", id)
	return nil
}

func cmdCategories(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("categories", flag.ContinueOnError)
	if err := parse(a, fs, args); err != nil {
		return err
	}

	cats, err := a.service.ListCategories(ctx)
	if err != nil {
		return err
	}
	return a.print(cats)
}

func cmdComment(ctx context.Context, a *app, args []string) error {
	var in model.CommentInput
	fs := flag.NewFlagSet("comment", flag.ContinueOnError)
	fs.StringVar(&in.Content, "content", "", "comment text")
	fs.Func("reply-to", "parent comment id", func(s string) error { in.ParentID = model.ID(s); return nil })
	if err := parse(a, fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "usage: articlectl comment -content text <article-id>")
		return errUsage
	}

	c, err := a.service.CreateComment(ctx, model.ID(fs.Arg(0)), in)
	if err != nil {
		return err
	}
	return a.print(c)
}

func cmdUncomment(ctx context.Context, a *app, args []string) error {
	id, err := idArg(a, "uncomment", args)
	if err != nil {
		return err
	}
	if err := a.service.DeleteComment(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted comment %s\n", id)
	return nil
}

func cmdLike(ctx context.Context, a *app, args []string) error {
	var target model.LikeTarget
	fs := flag.NewFlagSet("like", flag.ContinueOnError)
	fs.Func("article", "article id", func(s string) error { target.ArticleID = model.ID(s); return nil })
	fs.Func("comment", "comment id", func(s string) error { target.CommentID = model.ID(s); return nil })
	if err := parse(a, fs, args); err != nil {
		return err
	}

	st, err := a.service.ToggleLike(ctx, target)
	if err != nil {
		return err
	}
	return a.print(st)
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	if err := parse(a, fs, args); err != nil {
		return err
	}
	if err := a.sess.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "logged out")
	return nil
}
