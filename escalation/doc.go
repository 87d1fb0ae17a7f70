/*
Package escalation implements the time-gated verification protocol that
decides when a held-back share may be released.

An Entity is either a claim, filed by a beneficiary, or a heartbeat, armed by
the owner and activated when a check-in is missed. Once active it moves
through the stages of a Policy, each with its own channel, attempt limit and
minimum interval:

	armed -> stage1_active -> stage2_active -> ... -> release_authorized
	                 \               \
	                  +---------------+--> owner_confirmed_alive

Any non-terminal entity can also be rejected. release_authorized,
owner_confirmed_alive and rejected are terminal: terminal entities are never
modified again.

# Owners

Entities are created only for secrets whose owner was registered with
Service.RegisterOwner when the secret was protected. The owner's contacts and
wallet are copied from that registration; claimants name only the content ID.

# Evaluation

Evaluate is a pure function of (policy, entity, now). Machine applies its
Decision: it dispatches through an interfaces.Messenger, counts the attempt
only when the dispatch succeeded, persists the entity and appends an Event for
every transition and dispatch. No timer lives in memory; all timing comes
from persisted timestamps and an injected clock.Clock.

# Scheduling

Scheduler runs on a ticker (hourly by default). Each run activates overdue
heartbeats and then evaluates the entities of every active stage. Because the
interval check is made against persisted state, repeated or concurrent runs
do not send duplicates, and several processes may share one store.

Every saved entity carries a Version. Repository.Save refuses a copy whose
version is outdated with interfaces.ErrConcurrentUpdate; Machine.Tick and the
Service then reload and decide again, so a response or rejection recorded
while a message was being sent is never overwritten. Stored terminal states
and recorded responses are never replaced.

# Owner responses

Service.Respond and Service.RespondWithSignature record a response; the next
tick confirms the owner alive regardless of attempt counters. A confirmed
heartbeat is replaced by a freshly armed one. Signatures are EIP-191 personal
messages of ResponseMessage(id) from the wallet registered on the entity.
Once an entity whose owner registered a wallet is escalating, only signed
responses are accepted; renewing an armed heartbeat needs no signature.
*/
package escalation
