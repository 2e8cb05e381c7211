package sqlinline

// QInsertWebhookEvent is the idempotency gate for completion notifications.
// The unique constraint on (prediction_id, story_id, scene_index, webhook_type)
// is the sole mechanism preventing double-application of a notification.
const QInsertWebhookEvent = `--sql 12e37a30-dcba-4b60-90ed-969a9e41114d
insert into webhook_events (id, prediction_id, story_id, scene_index, webhook_type, created_at)
values (gen_random_uuid(), $1::text, $2::uuid, $3::int, $4::text, now());
`
