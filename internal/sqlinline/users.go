package sqlinline

const QUpsertUser = `--sql be6b963d-cae8-44a6-baf8-b960b40f6670
insert into users (id, email, tier, properties, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, '{}'::jsonb, now(), now())
on conflict (id) do update set
    email = excluded.email,
    updated_at = now()
returning id, email, tier;
`

const QSelectUserTier = `--sql 108ecf1f-d370-41b7-957b-0cf0f404f00a
select tier
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByEmail = `--sql a3695f3e-7c78-4b2d-889a-9062b6ccbdac
select id, email, tier, created_at, updated_at
from users
where email = $1::text
limit 1;
`

const QUpdateUserTier = `--sql f161b45c-7e93-407b-9ba7-17232ecb8836
update users
set tier = $2::text,
    updated_at = now()
where id = $1::uuid
returning id, email, tier;
`
