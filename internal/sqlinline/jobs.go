package sqlinline

const QInsertJob = `--sql f10369d6-6817-461e-8aaa-0e691681a181
insert into generation_jobs (
    id, user_id, story_id, status, progress, total_scenes,
    images_generated, audio_generated, error_message, created_at, updated_at
)
values ($1::uuid, $2::uuid, $3::uuid, 'processing', 0, $4::int, 0, 0, '', now(), now());
`

const QSelectJob = `--sql d617e4b8-0558-4a16-9482-cc15f79382cc
select id, user_id, story_id, status, progress, total_scenes,
       images_generated, audio_generated, error_message, created_at, updated_at
from generation_jobs
where id = $1::uuid
limit 1;
`

const QCountProcessingJobs = `--sql a432fe7b-0b58-45b6-96cd-acfb70214407
select count(*)
from generation_jobs
where user_id = $1::uuid
  and status = 'processing';
`

// QCountOtherProcessingJobs is the consumption-time variant: a claimed task's
// own job is always processing, so it is excluded from the cap count.
const QCountOtherProcessingJobs = `--sql d815fc3a-3a8e-4e42-b925-e1279530e33b
select count(*)
from generation_jobs
where user_id = $1::uuid
  and status = 'processing'
  and id <> $2::uuid;
`

const QUpdateJobProgress = `--sql e403a1ca-dc83-4416-a165-9af06340c8ea
update generation_jobs
set progress = $2::int,
    images_generated = $3::int,
    audio_generated = $4::int,
    updated_at = now()
where id = $1::uuid
  and status = 'processing';
`

const QMarkJobCompleted = `--sql 38c4cc2f-8c0c-4707-9d8d-5d5975ff2eb0
update generation_jobs
set status = 'completed',
    progress = 100,
    images_generated = $2::int,
    audio_generated = $3::int,
    error_message = '',
    updated_at = now()
where id = $1::uuid;
`

const QMarkJobFailed = `--sql 3b8540af-c908-4edf-b4d5-0a73e0dbeb94
update generation_jobs
set status = 'failed',
    error_message = $2::text,
    updated_at = now()
where id = $1::uuid
  and status = 'processing';
`

const QMarkJobCancelled = `--sql 699216ef-23ac-4ea1-931e-60200a1afbdb
update generation_jobs
set status = 'cancelled',
    updated_at = now()
where id = $1::uuid
  and status = 'processing'
returning user_id, story_id;
`
