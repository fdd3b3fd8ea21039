package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	realmID := fs.String("realm", "", "realm id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "tick filter (optional)")
	limit := fs.Int("limit", 20, "result limit")
	agent := fs.String("agent", "", "agent eid filter (outcomes)")
	kind := fs.String("kind", "", "assignment kind filter (outcomes)")
	_ = fs.Parse(args)

	q := "ticks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*realmID) == "" {
			fmt.Fprintln(os.Stderr, "missing -realm or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "realms", *realmID, "index", "engine.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "ticks":
		rows, err := db.Query(`SELECT tick,at_ms,agents,delivered,duplicates,rejected,outcomes,round_skipped FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick         int64 `json:"tick"`
				AtMS         int64 `json:"at_ms"`
				Agents       int   `json:"agents"`
				Delivered    int   `json:"delivered"`
				Duplicates   int   `json:"duplicates"`
				Rejected     int   `json:"rejected"`
				Outcomes     int   `json:"outcomes"`
				RoundSkipped int   `json:"round_skipped"`
			}
			if err := rows.Scan(&r.Tick, &r.AtMS, &r.Agents, &r.Delivered, &r.Duplicates, &r.Rejected, &r.Outcomes, &r.RoundSkipped); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "outcomes":
		qs := `SELECT tick,seq,at_ms,grp,kind,result,agent,target,spell FROM outcomes`
		var conds []string
		var qargs []any
		if *tick != 0 {
			conds = append(conds, "tick=?")
			qargs = append(qargs, int64(*tick))
		}
		if strings.TrimSpace(*agent) != "" {
			conds = append(conds, "agent=?")
			qargs = append(qargs, strings.TrimSpace(*agent))
		}
		if strings.TrimSpace(*kind) != "" {
			conds = append(conds, "kind=?")
			qargs = append(qargs, strings.TrimSpace(*kind))
		}
		if len(conds) > 0 {
			qs += " WHERE " + strings.Join(conds, " AND ")
		}
		qs += " ORDER BY tick DESC, seq DESC LIMIT ?"
		qargs = append(qargs, *limit)

		rows, err := db.Query(qs, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   int64  `json:"tick"`
				Seq    int    `json:"seq"`
				AtMS   int64  `json:"at_ms"`
				Group  int64  `json:"group"`
				Kind   string `json:"kind"`
				Result string `json:"result"`
				Agent  string `json:"agent"`
				Target string `json:"target,omitempty"`
				Spell  int64  `json:"spell,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.AtMS, &r.Group, &r.Kind, &r.Result, &r.Agent, &r.Target, &r.Spell); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "assignments":
		rows, err := db.Query(`SELECT kind,result,COUNT(*) FROM outcomes GROUP BY kind,result ORDER BY kind,result`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Kind   string `json:"kind"`
				Result string `json:"result"`
				Count  int64  `json:"count"`
			}
			if err := rows.Scan(&r.Kind, &r.Result, &r.Count); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "resolver":
		if *tick == 0 {
			lt, err := latestTick(db, "resolver_sites")
			if err != nil {
				fmt.Fprintln(os.Stderr, "latest tick:", err)
				os.Exit(1)
			}
			if lt == 0 {
				fmt.Fprintln(os.Stderr, "no resolver rows found")
				os.Exit(2)
			}
			*tick = lt
		}
		rows, err := db.Query(`SELECT site,ok,fail FROM resolver_sites WHERE tick=? ORDER BY site`, int64(*tick))
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick uint64 `json:"tick"`
				Site string `json:"site"`
				OK   int64  `json:"ok"`
				Fail int64  `json:"fail"`
			}
			if err := rows.Scan(&r.Site, &r.OK, &r.Fail); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Tick = *tick
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-realm REALM|-db PATH] [-tick T] [-agent EID] [-kind KIND] ticks|outcomes|assignments|resolver|catalogs")
		os.Exit(2)
	}
}

func latestTick(db *sql.DB, table string) (uint64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil db")
	}
	var t int64
	if err := db.QueryRow(fmt.Sprintf(`SELECT COALESCE(MAX(tick),0) FROM %s`, table)).Scan(&t); err != nil {
		return 0, err
	}
	if t < 0 {
		return 0, nil
	}
	return uint64(t), nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
