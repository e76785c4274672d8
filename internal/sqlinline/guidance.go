package sqlinline

const QSelectGuidanceByID = `--sql 0b690fae-3de8-4ef3-be82-663ebd184e1f
select id::text, owner_id, kind, date_key::text, locale, status, title, content,
       provider, generated_at, created_at, updated_at
from guidance
where id = $1::uuid;
`

const QSelectGuidanceByKey = `--sql 6cca3891-cff9-49e0-b7c9-f28c92f59b33
select id::text, owner_id, kind, date_key::text, locale, status, title, content,
       provider, generated_at, created_at, updated_at
from guidance
where owner_id = $1
  and kind = $2
  and date_key = $3::date;
`

// QInsertGuidancePlaceholder relies on the natural-key unique constraint so
// concurrent callers create at most one row.
const QInsertGuidancePlaceholder = `--sql 5d3612f4-c23f-411c-b1ba-087f46e6e5bc
insert into guidance (owner_id, kind, date_key, locale, status)
values ($1, $2, $3::date, $4, 'PENDING')
on conflict on constraint guidance_natural_key do nothing;
`

const QMarkGuidanceReady = `--sql 0169b0f1-8940-4724-965e-51c0bdfbc4d7
update guidance
set status = 'READY',
    title = $2,
    provider = $3,
    content = $4::jsonb,
    generated_at = now(),
    updated_at = now()
where id = $1::uuid
  and status = 'PENDING';
`
