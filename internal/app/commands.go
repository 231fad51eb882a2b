package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pdcpos/posoffline/internal/common"
)

// Login prompts for credentials and opens a session for this tab. Works
// against the server when reachable, against the cached credential hash
// otherwise.
func (a *App) Login(ctx context.Context) error {
	login, err := getSimpleText(a.reader, "Login", os.Stdout)
	if err != nil {
		return err
	}
	secret, err := getSecret(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	s, err := a.sess.Login(ctx, login, secret, a.tabID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			fmt.Println("Login failed: wrong login or PIN")
		case errors.Is(err, common.ErrLocalDataNotAvailable):
			fmt.Println("Offline and no cached credentials for this user. Connect once to log in.")
		default:
			fmt.Println("Login failed:", err)
		}
		return err
	}

	a.current = s
	a.rememberOwner(ctx, s.OwnerID)
	fmt.Printf("Logged in as %s\n", s.OwnerID)
	return nil
}

// Order accepts an order payload (pasted JSON or a one-line free-form note
// wrapped into JSON) and enqueues it. The write succeeds whether or not the
// server is reachable.
func (a *App) Order(ctx context.Context) error {
	if !a.isLoggedIn() {
		fmt.Println("Log in first")
		return common.ErrUnauthorized
	}

	body, err := getMultiline(a.reader, "Order payload (JSON)", os.Stdout)
	if err != nil {
		return err
	}
	if body == "" {
		fmt.Println("Empty order, nothing queued")
		return nil
	}

	payload := json.RawMessage(body)
	if !json.Valid(payload) {
		wrapped, merr := json.Marshal(map[string]string{"note": body})
		if merr != nil {
			return merr
		}
		payload = wrapped
	}

	tx, err := a.queue.Enqueue(ctx, payload)
	if err != nil {
		fmt.Println("Queueing order failed:", err)
		return err
	}

	if err := a.sess.Heartbeat(ctx, a.current); err != nil {
		a.log.Warn(ctx, "session heartbeat failed", "error", err)
	}

	fmt.Printf("Order queued: %s\n", tx.ID)
	if !a.monitor.Reachable() {
		fmt.Println("(offline: will sync when the server is reachable)")
	}
	return nil
}

// Status prints queue depth, connectivity and sync error counts.
func (a *App) Status(ctx context.Context) error {
	pending, err := a.queue.PendingCount(ctx)
	if err != nil {
		return err
	}
	overflow, err := a.queue.OverflowCount(ctx)
	if err != nil {
		return err
	}
	syncErrs, err := a.syncer.ErrorCount(ctx)
	if err != nil {
		return err
	}

	st := a.monitor.State()
	fmt.Printf("Connectivity: %s (checked %s)\n", st.State, st.LastCheckedAt.Format("15:04:05"))
	fmt.Printf("Pending transactions: %d\n", pending)
	if overflow > 0 {
		fmt.Printf("Archived by overflow: %d\n", overflow)
	}
	if syncErrs > 0 {
		fmt.Printf("Sync errors on record: %d (inspect before ignoring)\n", syncErrs)
	}
	if a.syncer.Syncing() {
		fmt.Println("Sync cycle in progress")
	}
	return nil
}

// Sync triggers a cycle right now instead of waiting for the timer.
func (a *App) Sync(ctx context.Context) error {
	res := a.syncer.SyncNow(ctx)
	switch {
	case res.Skipped:
		fmt.Println("Sync skipped: offline or already syncing")
	case res.Err != nil:
		fmt.Println("Sync failed:", res.Err)
		return res.Err
	default:
		fmt.Printf("Synced %d, failed %d, %d still pending\n", res.Synced, res.Failed, res.Remaining)
	}
	return nil
}

// Catalog lists the cached records of one reference collection.
func (a *App) Catalog(ctx context.Context, collection string) error {
	recs := a.refs.Records(ctx, collection)
	if len(recs) == 0 {
		fmt.Printf("No cached records in %q\n", collection)
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s\t%s\n", r.RecordID, r.Payload)
	}
	return nil
}

// Refresh pulls a reference collection from the server and replaces the
// local snapshot.
func (a *App) Refresh(ctx context.Context, collection string) error {
	if !a.monitor.Reachable() {
		fmt.Println("Offline: keeping the cached snapshot")
		return common.ErrUnavailable
	}

	raw, err := a.client.FetchReference(ctx, collection)
	if err != nil {
		fmt.Println("Fetching reference data failed:", err)
		return err
	}
	n, err := a.refs.Update(ctx, collection, raw)
	if err != nil {
		fmt.Println("Saving reference data failed:", err)
		return err
	}
	fmt.Printf("Collection %q refreshed: %d records\n", collection, n)
	return nil
}

// Tabs lists every live session of the current user across tabs.
func (a *App) Tabs(ctx context.Context) error {
	if !a.isLoggedIn() {
		fmt.Println("Log in first")
		return common.ErrUnauthorized
	}

	all, err := a.sess.Sessions(ctx, a.current.OwnerID)
	if err != nil {
		return err
	}
	for _, s := range all {
		marker := " "
		if s.TabID == a.tabID {
			marker = "*"
		}
		fmt.Printf("%s %s\tstarted %s\tlast seen %s\n", marker, s.TabID,
			s.CreatedAt.Format("15:04:05"), s.HeartbeatAt.Format("15:04:05"))
	}
	return nil
}

// Logout closes this tab's session. Queued transactions, cached credentials
// and reference data stay on disk.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return nil
	}
	if err := a.sess.Logout(ctx, a.current); err != nil {
		fmt.Println("Logout failed:", err)
		return err
	}
	a.current = nil
	fmt.Println("Logged out")
	return nil
}
