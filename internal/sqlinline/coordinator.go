package sqlinline

const QSelectCoordinatorState = `--sql 8041bf22-6c96-4aa3-b5c1-a9fb8a329154
select state
from coordinator_state
where story_id = $1::text
limit 1;
`

const QUpsertCoordinatorState = `--sql cbe447e5-9017-4a2c-ab61-de5337f965f5
insert into coordinator_state (story_id, state, updated_at)
values ($1::text, $2::jsonb, now())
on conflict (story_id) do update set
    state = excluded.state,
    updated_at = now();
`

const QDeleteCoordinatorState = `--sql 8cc66e92-e6bd-4800-a234-9dc70a2dba39
delete from coordinator_state
where story_id = $1::text;
`
