// Package escrow provides an escrow ledger engine for Go applications.
//
// Escrow is designed as a library, not a service. Import it directly into your
// Go application and back it with the store of your choice. It tracks:
//
//   - Funds a consumer deposits against a specific provider, one account per pair
//   - Time-locked refunds, at most five per account, cancelled newest first by deposits
//   - A journal of the last twenty delivery receipts with strictly serial submission
//   - EIP-712 signed delivery claims with replay-safe nonces
//   - Plugin hooks for metrics and audit trails
//
// # Quick Start
//
// Create an escrow instance with your preferred store:
//
//	import (
//	    "github.com/xraph/escrow"
//	    "github.com/xraph/escrow/store/memory"
//	)
//
//	e := escrow.New(memory.New(),
//	    escrow.WithRefundLockDuration(2*time.Hour),
//	)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// Accounts are opened per (consumer, provider) pair:
//
//	acct, err := e.AddAccount(ctx, consumer, provider, 1000, "")
//
// Refunds lock part of the available balance and are paid out by
// ProcessRefunds once the lock has passed. A later deposit can cancel them:
//
//	r, err := e.RequestRefund(ctx, consumer, provider, 400)
//	_, err = e.Deposit(ctx, consumer, provider, 0, 400) // cancels r
//
// Providers submit deliverables one at a time. The next one is accepted only
// after the consumer acknowledged the previous one, either directly or with a
// signed claim:
//
//	_, err = e.AddDeliverable(ctx, consumer, provider, "task-1", contentHash)
//	err = e.AcknowledgeDeliverable(ctx, consumer, provider, "task-1")
//
// Once the consumer trusts the provider's TEE signer, a claim signed by that
// signer settles the deliverable and charges its fee:
//
//	err = e.AcknowledgeTEESigner(ctx, consumer, provider, true)
//	s, err := e.SettleDeliverable(ctx, provider, teeSigner, claim, sig)
//
// # Atomicity
//
// Every call either completes fully or leaves the stored account untouched.
// The engine serializes calls behind one lock, mutates a private copy of the
// account, checks every account invariant, and writes the copy back with a
// single store call. Plugins see an event only after that write succeeded.
//
// # Deletion
//
// DeleteAccount is a soft delete. The account leaves every lookup and listing
// but its nonce is retained, so re-creating the pair never re-enables a claim
// signed before the deletion.
//
// # TypeID
//
// Accounts and settlements carry TypeIDs:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	stl_01h455vb4pex5vsknk084sn02q   // Settlement ID
package escrow
