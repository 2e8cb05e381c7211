package sqlinline

const QInsertStory = `--sql f6785ef9-1022-4bc8-9557-954760635635
insert into stories (id, user_id, title, media_type, status, scenes, created_at, updated_at)
values ($1::uuid, $2::uuid, $3::text, $4::text, 'generating', $5::jsonb, now(), now());
`

const QSelectStory = `--sql ea4d2690-9b17-49bb-b579-802f815086f8
select id, user_id, title, media_type, status, scenes, created_at, updated_at
from stories
where id = $1::uuid
limit 1;
`

const QUpdateStoryScenes = `--sql 86660202-16e4-4905-9488-3e46e5c2e9d4
update stories
set scenes = $2::jsonb,
    status = $3::text,
    updated_at = now()
where id = $1::uuid;
`

const QMarkStoryCancelled = `--sql 3586714f-14f4-4703-9464-35838481c326
update stories
set status = 'cancelled',
    updated_at = now()
where id = $1::uuid
  and status = 'generating';
`
